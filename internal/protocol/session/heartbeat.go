package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrLivenessTimeout        = errors.New("session: heartbeat ack timeout")
	ErrInvalidHeartbeatConfig = errors.New("session: invalid heartbeat config")
)

// SendHeartbeatFunc writes one heartbeat carrying the last seen sequence.
type SendHeartbeatFunc func(ctx context.Context, seq uint64, hasSeq bool) error

// HeartbeatConfig wires a Heartbeater to its connection. Send and Sequence
// are the only handles the heartbeat task gets on shared session state.
type HeartbeatConfig struct {
	Interval        time.Duration
	FirstBeatJitter float64
	Send            SendHeartbeatFunc
	Sequence        func() (uint64, bool)
	Rand            *rand.Rand
}

// HeartbeatStatus is a copy of the heartbeat bookkeeping.
type HeartbeatStatus struct {
	Interval   time.Duration
	LastSentAt time.Time
	LastAckAt  time.Time
	AckPending bool
	Latency    time.Duration
	Sent       uint64
	Acked      uint64
}

// Heartbeater sends heartbeats on the peer-announced cadence and reports a
// liveness failure when a beat comes due while the previous one is unacked.
type Heartbeater struct {
	cfg     HeartbeatConfig
	trigger chan struct{}

	mu     sync.Mutex
	status HeartbeatStatus
}

func NewHeartbeater(cfg HeartbeatConfig) (*Heartbeater, error) {
	if cfg.Interval <= 0 || cfg.Send == nil {
		return nil, ErrInvalidHeartbeatConfig
	}
	if cfg.Sequence == nil {
		cfg.Sequence = func() (uint64, bool) { return 0, false }
	}
	if cfg.FirstBeatJitter < 0 || cfg.FirstBeatJitter >= 1 {
		cfg.FirstBeatJitter = 0
	}
	return &Heartbeater{
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		status:  HeartbeatStatus{Interval: cfg.Interval},
	}, nil
}

// FirstDelay is the wait before the first beat: the interval shortened by a
// random fraction bounded by FirstBeatJitter.
func (h *Heartbeater) FirstDelay() time.Duration {
	if h.cfg.FirstBeatJitter == 0 || h.cfg.Rand == nil {
		return h.cfg.Interval
	}
	cut := h.cfg.FirstBeatJitter * h.cfg.Rand.Float64()
	return time.Duration(float64(h.cfg.Interval) * (1 - cut))
}

// Run blocks until ctx is cancelled (nil), a send fails, or an ack is missed
// (ErrLivenessTimeout). No beat is sent once ctx is done.
func (h *Heartbeater) Run(ctx context.Context) error {
	timer := time.NewTimer(h.FirstDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			if h.AckPending() {
				return ErrLivenessTimeout
			}
			if err := h.beat(ctx); err != nil {
				return err
			}
			timer.Reset(h.cfg.Interval)
		case <-h.trigger:
			if ctx.Err() != nil {
				return nil
			}
			if err := h.beat(ctx); err != nil {
				return err
			}
		}
	}
}

// Trigger asks Run for an immediate beat without moving the cadence.
func (h *Heartbeater) Trigger() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

// RecordAck marks the outstanding beat as acknowledged.
func (h *Heartbeater) RecordAck() {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.AckPending {
		h.status.Latency = now.Sub(h.status.LastSentAt)
	}
	h.status.AckPending = false
	h.status.LastAckAt = now
	h.status.Acked++
}

func (h *Heartbeater) AckPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.AckPending
}

func (h *Heartbeater) Status() HeartbeatStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Heartbeater) beat(ctx context.Context) error {
	seq, ok := h.cfg.Sequence()
	// Marked before the write so an ack racing the send is not lost.
	h.mu.Lock()
	h.status.LastSentAt = time.Now()
	h.status.AckPending = true
	h.status.Sent++
	h.mu.Unlock()
	return h.cfg.Send(ctx, seq, ok)
}
