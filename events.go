package multipay

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event is a change or settlement notification for external observers and
// indexers.
type Event interface {
	EventName() string
}

// SwapRouterChanged signals a new router address and protocol selection.
type SwapRouterChanged struct {
	Router   common.Address `json:"router"`
	IsSwapV2 bool           `json:"isSwapV2"`
}

func (SwapRouterChanged) EventName() string { return "SwapRouterChanged" }

// FeeChanged signals a new fee rate (1e18-scaled).
type FeeChanged struct {
	Fee *big.Int `json:"fee"`
}

func (FeeChanged) EventName() string { return "FeeChanged" }

// FeeAddressChanged signals a new fee recipient.
type FeeAddressChanged struct {
	FeeAddress common.Address `json:"feeAddress"`
}

func (FeeAddressChanged) EventName() string { return "FeeAddressChanged" }

// SwapFinished signals one completed swap leg. AmountIn is the input amount
// the router actually spent.
type SwapFinished struct {
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
	AmountIn *big.Int       `json:"amountIn"`
}

func (SwapFinished) EventName() string { return "SwapFinished" }

// BatchPaymentFinished signals that every receiver of one instruction has
// been paid.
type BatchPaymentFinished struct {
	Token     common.Address   `json:"token"`
	Receivers []common.Address `json:"receivers"`
	Amounts   []*big.Int       `json:"amounts"`
}

func (BatchPaymentFinished) EventName() string { return "BatchPaymentFinished" }

// FeeCharged signals the batched fee transfer for one instruction. It is
// emitted even when Amount is zero; see the engine documentation.
type FeeCharged struct {
	Token      common.Address `json:"token"`
	FeeAddress common.Address `json:"feeAddress"`
	Amount     *big.Int       `json:"amount"`
}

func (FeeCharged) EventName() string { return "FeeCharged" }

// EventRecord is one delivered event with its sink-assigned identity.
type EventRecord struct {
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Event Event     `json:"event"`
}

// MemorySink records events in memory for indexers and tests.
type MemorySink struct {
	mu      sync.Mutex
	records []EventRecord
}

// NewMemorySink creates an empty in-memory event sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit implements EventSink.
func (s *MemorySink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, EventRecord{
		ID:    uuid.NewString(),
		At:    time.Now(),
		Event: event,
	})
}

// Records returns a copy of all delivered events in order.
func (s *MemorySink) Records() []EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Events returns the delivered events in order, without record metadata.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.records))
	for i, r := range s.records {
		out[i] = r.Event
	}
	return out
}

// Named returns the delivered events with the given name, in order.
func (s *MemorySink) Named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, r := range s.records {
		if r.Event.EventName() == name {
			out = append(out, r.Event)
		}
	}
	return out
}

// callFrame buffers the events of one entry-point invocation so that a
// failed call leaves no trace in the sink.
type callFrame struct {
	events []Event
}

func (f *callFrame) emit(event Event) {
	f.events = append(f.events, event)
}

func (f *callFrame) flush(sink EventSink) {
	if sink == nil {
		return
	}
	for _, ev := range f.events {
		sink.Emit(ev)
	}
}
