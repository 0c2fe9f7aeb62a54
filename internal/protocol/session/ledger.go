package session

import (
	"strings"
	"sync"
)

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	SessionID   string
	ResumeURL   string
	Sequence    uint64
	HasSequence bool
}

// Resumable reports whether the snapshot carries enough to attempt a resume.
func (s Snapshot) Resumable() bool {
	return s.SessionID != ""
}

// Ledger holds the resumable identity of one gateway session. The sequence
// only moves forward; it returns to absent only through Clear.
type Ledger struct {
	mu        sync.RWMutex
	sessionID string
	resumeURL string
	seq       uint64
	hasSeq    bool
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		SessionID:   l.sessionID,
		ResumeURL:   l.resumeURL,
		Sequence:    l.seq,
		HasSequence: l.hasSeq,
	}
}

// Sequence returns the last seen sequence number.
func (l *Ledger) Sequence() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq, l.hasSeq
}

// Advance records seq when it moves the stream forward. Replayed or stale
// values are ignored and reported as false.
func (l *Ledger) Advance(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasSeq && seq <= l.seq {
		return false
	}
	l.seq = seq
	l.hasSeq = true
	return true
}

// Establish stores the identity handed out by a successful handshake.
func (l *Ledger) Establish(sessionID, resumeURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = strings.TrimSpace(sessionID)
	l.resumeURL = strings.TrimSpace(resumeURL)
}

// Clear discards the identity and the sequence together.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = ""
	l.resumeURL = ""
	l.seq = 0
	l.hasSeq = false
}
