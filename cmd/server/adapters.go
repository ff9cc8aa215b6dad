package main

import (
	"context"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/bridge"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/discovery"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/filexfer"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/voice"
)

// fileSenderAdapter adapts *filexfer.Manager to bridge.FileSender. Send
// already matches exactly; the remaining three methods need their local
// DTOs converted to the bridge package's, per the repo's convention of
// keeping capability-interface DTOs out of the packages that implement
// them.
type fileSenderAdapter struct{ m *filexfer.Manager }

func (a fileSenderAdapter) Send(ctx context.Context, senderUsername, peerIP string, peerPort int, filePath string) (string, string, int64, error) {
	return a.m.Send(ctx, senderUsername, peerIP, peerPort, filePath)
}

func (a fileSenderAdapter) TransfersFor(username string) []bridge.TransferProgress {
	progress := a.m.TransfersFor(username)
	out := make([]bridge.TransferProgress, 0, len(progress))
	for _, p := range progress {
		out = append(out, bridge.TransferProgress{
			TransferID: p.TransferID,
			Filename:   p.Filename,
			Filesize:   p.TotalBytes,
			Sent:       p.BytesTransferred,
			State:      p.State.String(),
		})
	}
	return out
}

func (a fileSenderAdapter) Downloads() []bridge.DownloadedFile {
	files := a.m.Downloads()
	out := make([]bridge.DownloadedFile, 0, len(files))
	for _, f := range files {
		out = append(out, bridge.DownloadedFile{Filename: f.Filename, Filesize: f.Filesize})
	}
	return out
}

func (a fileSenderAdapter) OpenDownload(filename string) (bridge.ReadSeekCloser, int64, error) {
	return a.m.OpenDownload(filename)
}

// discoveryAdapter adapts *discovery.Responder to bridge.Broadcaster,
// flagging each returned peer stale per the responder's own threshold.
type discoveryAdapter struct{ r *discovery.Responder }

func (a discoveryAdapter) Announce(ctx context.Context, username, additionalInfo string) error {
	return a.r.Announce(ctx, username, additionalInfo)
}

func (a discoveryAdapter) Peers() []bridge.DiscoveredPeer {
	peers := a.r.Peers()
	out := make([]bridge.DiscoveredPeer, 0, len(peers))
	for _, p := range peers {
		out = append(out, bridge.DiscoveredPeer{
			Username:       p.Username,
			IP:             p.IP,
			AdditionalInfo: p.AdditionalInfo,
			LastSeen:       p.LastSeen,
			Stale:          a.r.IsStale(p),
		})
	}
	return out
}

// voiceCallsAdapter adapts *voice.Manager to signaling.VoiceCalls. The
// UDP port fields voice.Manager still carries from its TCP-hub call path
// are fixed at 0 here: WS-signaled calls negotiate their media path via
// the SDP offer/answer/ICE exchange the signaling router relays, so the
// port is meaningless for this path.
type voiceCallsAdapter struct{ m *voice.Manager }

func (a voiceCallsAdapter) Initiate(ctx context.Context, initiator, target, initiatorIP string) (int64, error) {
	sess, err := a.m.Initiate(ctx, initiator, target, initiatorIP, 0)
	if err != nil {
		return 0, err
	}
	return sess.ID, nil
}

func (a voiceCallsAdapter) Accept(ctx context.Context, sessionID int64, accepter string) error {
	_, err := a.m.Accept(ctx, sessionID, accepter, 0)
	return err
}

func (a voiceCallsAdapter) Reject(ctx context.Context, sessionID int64, user string) error {
	return a.m.Reject(ctx, sessionID, user)
}

func (a voiceCallsAdapter) Terminate(ctx context.Context, sessionID int64, user string) error {
	return a.m.Terminate(ctx, sessionID, user)
}

func (a voiceCallsAdapter) SetInitiatorOffer(ctx context.Context, initiator, target, initiatorIP, sdp string) (int64, error) {
	return a.m.SetInitiatorOfferForPair(initiator, target, initiatorIP, sdp), nil
}

func (a voiceCallsAdapter) SetTargetAnswer(ctx context.Context, sessionID int64, sdp string) error {
	return a.m.SetTargetAnswer(sessionID, sdp)
}
