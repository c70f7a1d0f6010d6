package ledger

import (
	"log/slog"
	"sync"

	"github.com/holiman/uint256"
)

type EventKind string

const (
	EventDeposit  EventKind = "Deposit"
	EventWithdraw EventKind = "Withdraw"
	EventClaim    EventKind = "Claim"
)

// Event is the observable record of a committed operation. Amount is the
// payout for claims.
type Event struct {
	Kind      EventKind
	Account   string
	Amount    *uint256.Int
	Timestamp uint64
}

// EventSink receives events after the operation that produced them committed.
// Emit runs while the ledger is still locked and must not call back into it.
type EventSink interface {
	Emit(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// Recorder keeps every event it is given, in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Replay emits every recorded event to sink, in order.
func (r *Recorder) Replay(sink EventSink) {
	for _, e := range r.Events() {
		sink.Emit(e)
	}
}

// Last returns the most recent event, if any.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// LogSink writes events to a logger.
func LogSink(logger *slog.Logger) EventSink {
	return EventSinkFunc(func(e Event) {
		logger.Info("ledger event", "kind", string(e.Kind), "account", e.Account, "amount", e.Amount.Dec(), "timestamp", e.Timestamp)
	})
}
