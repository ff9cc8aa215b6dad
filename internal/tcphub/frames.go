package tcphub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

// handleFrame dispatches one parsed line to the appropriate command
// handler, writing any reply directly to sess (dispatch runs on a worker
// goroutine; writes still only ever go through sess.Send, which enqueues
// onto the single writer goroutine).
func (s *Server) handleFrame(ctx context.Context, sess *Session, line string) {
	fields := strings.Split(line, ":")
	if len(fields) == 0 || fields[0] == "" {
		sess.Send("ERROR:empty frame")
		return
	}
	cmd := fields[0]
	args := fields[1:]

	if cmd != "LOGIN" && !sess.Authenticated() {
		sess.Send("ERROR:login first")
		return
	}

	switch cmd {
	case "LOGIN":
		s.handleLogin(ctx, sess, args)
	case "MSG":
		s.handleMsg(ctx, sess, strings.Join(args, ":"))
	case "PEER":
		s.handlePeer(sess, args)
	case "USERS":
		s.handleUsers(sess)
	case "WHITEBOARD_OPEN":
		s.handleWhiteboardOpen(ctx, sess, args)
	case "WHITEBOARD_DRAW":
		s.handleWhiteboardDraw(ctx, sess, args)
	case "WHITEBOARD_CLEAR":
		s.handleWhiteboardClear(ctx, sess, args)
	case "WHITEBOARD_CLOSE":
		s.handleWhiteboardClose(ctx, sess, args)
	case "WHITEBOARD_SYNC":
		s.handleWhiteboardSync(sess, args)
	default:
		sess.Send("ERROR:unknown command")
	}
}

func (s *Server) handleLogin(ctx context.Context, sess *Session, args []string) {
	if len(args) < 2 {
		sess.Send("LOGIN_FAIL:malformed login")
		return
	}
	username, password := args[0], args[1]

	if s.limiter != nil && !s.limiter.Allow(sess.ip) {
		sess.Send("LOGIN_FAIL:rate limited")
		return
	}
	if !s.credGate.Verify(ctx, username, password) {
		sess.Send("LOGIN_FAIL:invalid credentials")
		return
	}

	fileTCP, voiceUDP := -1, -1
	if len(args) > 2 {
		if v, err := strconv.Atoi(args[2]); err == nil {
			fileTCP = v
		}
	}
	if len(args) > 3 {
		if v, err := strconv.Atoi(args[3]); err == nil {
			voiceUDP = v
		}
	}

	prev := s.presence.Login(ctx, presence.Entry{
		Username: username,
		IP:       sess.ip,
		FileTCP:  fileTCP,
		VoiceUDP: voiceUDP,
		ViaNio:   true,
		Anchor:   sess,
	})
	if prev != nil {
		prev.Anchor.Close()
	}

	sess.setAuthenticated(username)
	s.bindUser(username, sess)

	if fileTCP > 0 && s.fileXfer != nil {
		if err := s.fileXfer.Start(ctx, username, fileTCP); err != nil {
			s.logger.WarnContext(ctx, "tcphub: failed to start file transfer listener", "user", username, "err", err)
		}
	}

	sess.Send(fmt.Sprintf("LOGIN_SUCCESS:%s", username))
	sess.Send(formatUserList(s.presence.Snapshot()))
}

func (s *Server) handleMsg(ctx context.Context, sess *Session, text string) {
	msg, err := s.chat.Broadcast(ctx, sess.Username(), text)
	if err != nil {
		if errors.Is(err, chatcore.ErrNotLoggedIn) {
			sess.Send("ERROR:login first")
			return
		}
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}
	sess.Send(fmt.Sprintf("CHAT_MSG:%s:%d:%s", msg.From, msg.Timestamp, msg.Text))
}

func (s *Server) handlePeer(sess *Session, args []string) {
	if len(args) < 1 || args[0] == "" {
		sess.Send("ERROR:missing username")
		return
	}
	entry, ok := s.presence.FindPeer(args[0])
	if !ok {
		sess.Send(fmt.Sprintf("PEER:%s:offline", args[0]))
		return
	}
	sess.Send(fmt.Sprintf("PEER:%s", formatPeerEntry(entry)))
}

func (s *Server) handleUsers(sess *Session) {
	sess.Send(formatUserList(s.presence.Snapshot()))
}

func (s *Server) handleWhiteboardOpen(ctx context.Context, sess *Session, args []string) {
	if len(args) < 1 || args[0] == "" {
		sess.Send("ERROR:missing peer")
		return
	}
	id, err := s.boards.Create(ctx, sess.Username(), args[0])
	if err != nil {
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}
	sess.Send(fmt.Sprintf("WHITEBOARD_OPENED:%s", id))
}

func (s *Server) handleWhiteboardDraw(ctx context.Context, sess *Session, args []string) {
	if len(args) < 7 {
		sess.Send("ERROR:malformed whiteboard draw")
		return
	}
	sid := args[0]
	x1, y1, x2, y2, ok := parseCoords(args[1], args[2], args[3], args[4])
	if !ok {
		sess.Send("ERROR:malformed coordinates")
		return
	}
	color := args[5]
	thickness, err := strconv.ParseFloat(args[6], 64)
	if err != nil {
		sess.Send("ERROR:malformed thickness")
		return
	}

	user := sess.Username()
	// Manager.Draw notifies the other participant's live TCP session itself;
	// this call only needs its own echo back.
	_, err = s.boards.Draw(ctx, sid, user, x1, y1, x2, y2, color, thickness)
	if err != nil {
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}

	sess.Send(fmt.Sprintf("WHITEBOARD_COMMAND:%s:DRAW:%s:%.2f:%.2f:%.2f:%.2f:%s:%.2f", sid, user, x1, y1, x2, y2, color, thickness))
}

func (s *Server) handleWhiteboardClear(ctx context.Context, sess *Session, args []string) {
	if len(args) < 1 || args[0] == "" {
		sess.Send("ERROR:missing session id")
		return
	}
	sid := args[0]
	user := sess.Username()
	if _, err := s.boards.Clear(ctx, sid, user); err != nil {
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}
	sess.Send(fmt.Sprintf("WHITEBOARD_COMMAND:%s:CLEAR:%s", sid, user))
}

func (s *Server) handleWhiteboardClose(ctx context.Context, sess *Session, args []string) {
	if len(args) < 1 || args[0] == "" {
		sess.Send("ERROR:missing session id")
		return
	}
	if err := s.boards.Close(ctx, args[0], sess.Username()); err != nil {
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}
	sess.Send(fmt.Sprintf("WHITEBOARD_CLOSED:%s", args[0]))
}

func (s *Server) handleWhiteboardSync(sess *Session, args []string) {
	if len(args) < 1 || args[0] == "" {
		sess.Send("ERROR:missing session id")
		return
	}
	cmds, err := s.boards.Commands(context.Background(), args[0], sess.Username())
	if err != nil {
		sess.Send(fmt.Sprintf("ERROR:%s", err))
		return
	}
	sess.Send(fmt.Sprintf("WHITEBOARD_SYNC:%s:%s", args[0], formatCommands(cmds)))
}

func parseCoords(a, b, c, d string) (x1, y1, x2, y2 float64, ok bool) {
	var err error
	if x1, err = strconv.ParseFloat(a, 64); err != nil {
		return 0, 0, 0, 0, false
	}
	if y1, err = strconv.ParseFloat(b, 64); err != nil {
		return 0, 0, 0, 0, false
	}
	if x2, err = strconv.ParseFloat(c, 64); err != nil {
		return 0, 0, 0, 0, false
	}
	if y2, err = strconv.ParseFloat(d, 64); err != nil {
		return 0, 0, 0, 0, false
	}
	return x1, y1, x2, y2, true
}

func formatCommands(cmds []whiteboard.Command) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		kind := "DRAW"
		if c.Kind == whiteboard.KindClear {
			kind = "CLEAR"
		}
		parts = append(parts, fmt.Sprintf("%s,%s,%.2f,%.2f,%.2f,%.2f,%s,%.2f",
			kind, c.User, c.X1, c.Y1, c.X2, c.Y2, c.Color, c.Thickness))
	}
	return strings.Join(parts, "|")
}

func formatUserList(entries []presence.Entry) string {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s,%s,%d,%d,%s", e.Username, e.IP, e.FileTCP, e.VoiceUDP, transportTag(e)))
	}
	return "USER_LIST:" + strings.Join(parts, ";")
}

func formatPeerEntry(e presence.Entry) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", e.Username, e.IP, e.FileTCP, e.VoiceUDP, transportTag(e))
}

func transportTag(e presence.Entry) string {
	if e.ViaNio {
		return "nio"
	}
	return "http"
}
