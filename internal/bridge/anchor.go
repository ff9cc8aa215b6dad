package bridge

import "github.com/google/uuid"

// httpAnchor is the presence.Anchor for a login that came through the HTTP
// bridge rather than the TCP hub: there is no socket to close, so teardown
// is a no-op. id gives each login its own identity — a bare struct{} would
// make every instance compare equal, letting an old login's logout evict a
// different, currently-valid one for the same user.
type httpAnchor struct {
	id string
}

func newHTTPAnchor() httpAnchor {
	return httpAnchor{id: uuid.NewString()}
}

func (httpAnchor) Close() {}
