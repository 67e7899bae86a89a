package events

import (
	"sync"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
)

// EventType identifies what happened to a loan
type EventType string

const (
	EventCheckout EventType = "checkout"
	EventReturn   EventType = "return"
)

// LoanEvent is one entry on the live activity feed
type LoanEvent struct {
	Type       EventType `json:"type"`
	LoanID     string    `json:"loanId"`
	BookID     string    `json:"bookId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewLoanEvent builds an event from a loan
func NewLoanEvent(t EventType, loan *domain.Loan, at time.Time) LoanEvent {
	return LoanEvent{
		Type:       t,
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		OccurredAt: at,
	}
}

// Broadcaster fans loan events out to subscribers (websocket clients).
// Publishing never blocks: a subscriber that cannot keep up has events
// dropped on its channel rather than stalling checkouts.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan LoanEvent]struct{}
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan LoanEvent]struct{})}
}

// Subscribe registers a new listener. The caller must call the returned
// cancel func when done.
func (b *Broadcaster) Subscribe() (<-chan LoanEvent, func()) {
	ch := make(chan LoanEvent, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer room
func (b *Broadcaster) Publish(ev LoanEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
