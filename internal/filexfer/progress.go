package filexfer

import (
	"sync"
	"time"
)

// State is a transfer's terminal or in-flight status as observed through
// the HTTP bridge.
type State int

const (
	StateInProgress State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "IN_PROGRESS"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Progress is one transfer's observable progress, kept in a per-user map
// for the duration of the receiver's login.
type Progress struct {
	TransferID       string
	Filename         string
	TotalBytes       int64
	BytesTransferred int64
	Sender           string
	StartTime        time.Time
	State            State
	ErrorMessage     string
}

type progressTable struct {
	mu      sync.Mutex
	byUser  map[string]map[string]*Progress // username -> transferID -> progress
}

func newProgressTable() *progressTable {
	return &progressTable{byUser: make(map[string]map[string]*Progress)}
}

func (t *progressTable) start(recipient string, p *Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byUser[recipient]
	if !ok {
		m = make(map[string]*Progress)
		t.byUser[recipient] = m
	}
	m[p.TransferID] = p
}

func (t *progressTable) update(recipient, transferID string, bytesTransferred int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byUser[recipient][transferID]; ok {
		p.BytesTransferred = bytesTransferred
	}
}

func (t *progressTable) finish(recipient, transferID string, state State, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byUser[recipient][transferID]; ok {
		p.State = state
		p.ErrorMessage = errMsg
	}
}

func (t *progressTable) clear(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, username)
}

func (t *progressTable) forUser(username string) []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Progress, 0, len(t.byUser[username]))
	for _, p := range t.byUser[username] {
		out = append(out, *p)
	}
	return out
}
