package signaling

import (
	"context"
	"net"
)

// dispatch routes one inbound message from c according to its Type.
// Unrecognized types and offline targets both produce a system/error reply
// to the sender, never a panic or a dropped connection.
func (r *Router) dispatch(c *conn, msg Message) {
	switch msg.Type {
	case "call-initiate":
		r.handleCallInitiate(c, msg)
	case "call-accept":
		r.handleCallAccept(c, msg)
	case "call-reject":
		r.handleCallReject(c, msg)
	case "call-end":
		r.handleCallEnd(c, msg)
	case "offer":
		r.handleOffer(c, msg)
	case "answer":
		r.handleAnswer(c, msg)
	case "ice-candidate":
		r.handleICECandidate(c, msg)
	default:
		r.sendError(c, "unrecognized message type: "+msg.Type)
	}
}

func remoteIP(ws interface{ RemoteAddr() net.Addr }) string {
	addr := ws.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (r *Router) handleCallInitiate(c *conn, msg Message) {
	if r.calls == nil {
		r.sendError(c, "voice sessions are not available")
		return
	}
	if msg.To == "" {
		r.sendError(c, "call-initiate requires a target")
		return
	}
	r.mu.Lock()
	_, online := r.conns[msg.To]
	r.mu.Unlock()
	if !online {
		r.sendError(c, "target is not connected: "+msg.To)
		return
	}

	sessionID, err := r.calls.Initiate(context.Background(), c.username, msg.To, remoteIP(c.ws))
	if err != nil {
		r.sendError(c, err.Error())
		return
	}

	r.mu.Lock()
	r.sessionParties[sessionID] = [2]string{c.username, msg.To}
	r.mu.Unlock()

	r.sendTo(msg.To, Message{Type: "incoming-call", Data: map[string]any{
		"sessionId": sessionID, "caller": c.username,
	}})
	r.sendTo(c.username, Message{Type: "call-initiated", Data: map[string]any{
		"sessionId": sessionID, "target": msg.To,
	}})
}

func (r *Router) handleCallAccept(c *conn, msg Message) {
	sessionID, peer, ok := r.sessionPeer(c, msg)
	if !ok {
		return
	}
	if r.calls != nil {
		if err := r.calls.Accept(context.Background(), sessionID, c.username); err != nil {
			r.sendError(c, err.Error())
			return
		}
	}
	r.sendTo(peer, Message{Type: "call-accepted", Data: map[string]any{
		"sessionId": sessionID, "accepter": c.username,
	}})
}

func (r *Router) handleCallReject(c *conn, msg Message) {
	sessionID, peer, ok := r.sessionPeer(c, msg)
	if !ok {
		return
	}
	if r.calls != nil {
		if err := r.calls.Reject(context.Background(), sessionID, c.username); err != nil {
			r.sendError(c, err.Error())
			return
		}
	}
	r.forgetSession(sessionID)
	r.sendTo(peer, Message{Type: "call-rejected", Data: map[string]any{
		"sessionId": sessionID, "rejecter": c.username,
	}})
}

func (r *Router) handleCallEnd(c *conn, msg Message) {
	sessionID, peer, ok := r.sessionPeer(c, msg)
	if !ok {
		return
	}
	if r.calls != nil {
		if err := r.calls.Terminate(context.Background(), sessionID, c.username); err != nil {
			r.sendError(c, err.Error())
			return
		}
	}
	r.forgetSession(sessionID)
	r.sendTo(peer, Message{Type: "call-ended", Data: map[string]any{
		"sessionId": sessionID, "endedBy": c.username,
	}})
}

// handleOffer stores the SDP offer in the session between the sender and
// the target, creating one if missing, then forwards it verbatim.
func (r *Router) handleOffer(c *conn, msg Message) {
	if msg.To == "" {
		r.sendError(c, "offer requires a target")
		return
	}

	if r.calls != nil {
		sdp, _ := msg.Data["sdp"].(string)
		sessionID, err := r.calls.SetInitiatorOffer(context.Background(), c.username, msg.To, remoteIP(c.ws), sdp)
		if err != nil {
			r.sendError(c, err.Error())
			return
		}
		r.mu.Lock()
		if _, tracked := r.sessionParties[sessionID]; !tracked {
			r.sessionParties[sessionID] = [2]string{c.username, msg.To}
		}
		r.mu.Unlock()
	}

	if !r.sendTo(msg.To, Message{Type: "offer", From: c.username, To: msg.To, Data: msg.Data}) {
		r.sendError(c, "target is not connected: "+msg.To)
	}
}

// handleAnswer stores the SDP answer against the session an earlier offer
// created between the target (answerer, this sender) and the initiator
// (msg.To), promoting it to CONNECTED, then forwards it verbatim.
func (r *Router) handleAnswer(c *conn, msg Message) {
	if msg.To == "" {
		r.sendError(c, "answer requires a target")
		return
	}

	if r.calls != nil {
		sessionID, ok := r.findSessionByParties(c.username, msg.To)
		if !ok {
			r.sendError(c, "no offer received for this session")
			return
		}
		sdp, _ := msg.Data["sdp"].(string)
		if err := r.calls.SetTargetAnswer(context.Background(), sessionID, sdp); err != nil {
			r.sendError(c, err.Error())
			return
		}
	}

	if !r.sendTo(msg.To, Message{Type: "answer", From: c.username, To: msg.To, Data: msg.Data}) {
		r.sendError(c, "target is not connected: "+msg.To)
	}
}

// findSessionByParties returns the tracked session id between a and b
// (unordered), if any.
func (r *Router) findSessionByParties(a, b string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, parties := range r.sessionParties {
		if (parties[0] == a && parties[1] == b) || (parties[0] == b && parties[1] == a) {
			return id, true
		}
	}
	return 0, false
}

func (r *Router) handleICECandidate(c *conn, msg Message) {
	if msg.To == "" {
		r.sendError(c, "ice-candidate requires a target")
		return
	}
	if !r.sendTo(msg.To, Message{Type: "ice-candidate", From: c.username, To: msg.To, Data: msg.Data}) {
		r.sendError(c, "target is not connected: "+msg.To)
	}
}

// sessionPeer resolves msg's sessionId field against the tracked party
// pair, returning the other participant. The sender must be one of the two
// tracked parties.
func (r *Router) sessionPeer(c *conn, msg Message) (int64, string, bool) {
	sessionID, ok := sessionIDOf(msg)
	if !ok {
		r.sendError(c, "missing or malformed sessionId")
		return 0, "", false
	}
	r.mu.Lock()
	parties, tracked := r.sessionParties[sessionID]
	r.mu.Unlock()
	if !tracked {
		r.sendError(c, "unknown session")
		return 0, "", false
	}
	switch c.username {
	case parties[0]:
		return sessionID, parties[1], true
	case parties[1]:
		return sessionID, parties[0], true
	default:
		r.sendError(c, "not a participant in this session")
		return 0, "", false
	}
}

func sessionIDOf(msg Message) (int64, bool) {
	raw, ok := msg.Data["sessionId"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func (r *Router) forgetSession(sessionID int64) {
	r.mu.Lock()
	delete(r.sessionParties, sessionID)
	r.mu.Unlock()
}

// terminateSessionsOf auto-terminates every session username was party to
// and notifies the other peer, called when username's connection closes.
func (r *Router) terminateSessionsOf(username string) {
	r.mu.Lock()
	var toEnd []struct {
		id   int64
		peer string
	}
	for id, parties := range r.sessionParties {
		switch username {
		case parties[0]:
			toEnd = append(toEnd, struct {
				id   int64
				peer string
			}{id, parties[1]})
		case parties[1]:
			toEnd = append(toEnd, struct {
				id   int64
				peer string
			}{id, parties[0]})
		}
	}
	for _, e := range toEnd {
		delete(r.sessionParties, e.id)
	}
	r.mu.Unlock()

	for _, e := range toEnd {
		if r.calls != nil {
			_ = r.calls.Terminate(context.Background(), e.id, username)
		}
		r.sendTo(e.peer, Message{Type: "peer-disconnected", Data: map[string]any{
			"sessionId": e.id, "peer": username,
		}})
	}
}
