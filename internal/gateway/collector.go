package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/gatewayctl/internal/model"
)

const defaultCollectorBuffer = 16

// CollectorOptions bounds a collector. Zero Timeout or Max means unbounded.
type CollectorOptions struct {
	Timeout time.Duration
	Max     int
	Buffer  int
}

// Collector delivers matching values on C until it stops. C is closed when
// Max is reached, the timeout fires, Stop is called or the engine
// terminates. A full buffer drops values.
type Collector[T any] struct {
	C <-chan T

	ch     chan T
	filter func(T) bool
	max    int
	count  int
	timer  *time.Timer
	set    *collectorSet[T]
}

// MessageCollector is fed by MESSAGE_CREATE.
type MessageCollector = Collector[model.Message]

// ReactionCollector is fed by MESSAGE_REACTION_ADD and MESSAGE_REACTION_REMOVE.
type ReactionCollector = Collector[ReactionEvent]

// Stop ends the collector. Safe to call more than once.
func (c *Collector[T]) Stop() {
	c.set.remove(c)
}

type ReactionKind int

const (
	ReactionAdd ReactionKind = iota + 1
	ReactionRemove
)

func (k ReactionKind) String() string {
	switch k {
	case ReactionAdd:
		return "add"
	case ReactionRemove:
		return "remove"
	default:
		return fmt.Sprintf("reaction(%d)", int(k))
	}
}

// ReactionEvent is a reaction add or remove flattened for collectors.
type ReactionEvent struct {
	Kind      ReactionKind
	ChannelID string
	MessageID string
	UserID    string
	GuildID   *string
	Emoji     model.Emoji
}

// reactionEvent reports false for payloads missing a channel, message, user
// or emoji; those never reach collectors.
func reactionEvent(kind ReactionKind, r model.MessageReaction) (ReactionEvent, bool) {
	if r.ChannelID == "" || r.MessageID == "" || r.UserID == "" || r.Emoji == nil {
		return ReactionEvent{}, false
	}
	return ReactionEvent{
		Kind:      kind,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		GuildID:   r.GuildID,
		Emoji:     *r.Emoji,
	}, true
}

type collectorSet[T any] struct {
	mu     sync.Mutex
	items  map[*Collector[T]]struct{}
	closed bool
}

func newCollectorSet[T any]() *collectorSet[T] {
	return &collectorSet[T]{items: make(map[*Collector[T]]struct{})}
}

func (s *collectorSet[T]) add(opts CollectorOptions, filter func(T) bool) *Collector[T] {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultCollectorBuffer
	}
	ch := make(chan T, buffer)
	c := &Collector[T]{C: ch, ch: ch, filter: filter, max: opts.Max, set: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return c
	}
	s.items[c] = struct{}{}
	if opts.Timeout > 0 {
		c.timer = time.AfterFunc(opts.Timeout, c.Stop)
	}
	return c
}

func (s *collectorSet[T]) remove(c *Collector[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *collectorSet[T]) dropLocked(c *Collector[T]) {
	if _, ok := s.items[c]; !ok {
		return
	}
	delete(s.items, c)
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.ch)
}

// publish never blocks. Filters run without the set lock held, so a filter
// may stop its own collector or register new ones; those see later values
// only.
func (s *collectorSet[T]) publish(v T) {
	s.mu.Lock()
	targets := make([]*Collector[T], 0, len(s.items))
	for c := range s.items {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if c.filter != nil && !c.filter(v) {
			continue
		}
		s.deliver(c, v)
	}
}

func (s *collectorSet[T]) deliver(c *Collector[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[c]; !ok {
		return
	}
	select {
	case c.ch <- v:
		c.count++
	default:
	}
	if c.max > 0 && c.count >= c.max {
		s.dropLocked(c)
	}
}

func (s *collectorSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *collectorSet[T]) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.items {
		s.dropLocked(c)
	}
}
