package usecase

import (
	"sync"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
)

// Outcome is what Request Intake is ultimately waiting to hear back from
// the Batch Allocator about one submitted request.
type Outcome struct {
	Reservation *entity.Reservation
	Err         *apperror.Error
}

// pendingRegistry is the in-process stand-in for the "rejection-channel
// polling" Request Intake does against the Batch Allocator (spec §4.1):
// one buffered channel per in-flight idempotency key, closed by whichever
// allocator goroutine resolves it. Grounded on the buffered
// Add()-blocks-on-a-result-channel pattern used for batch accumulation in
// the examples pack's flash-sale service.
type pendingRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan Outcome
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{waiters: make(map[string]chan Outcome)}
}

// register must be called before the request is published onto the bus,
// so the allocator can never resolve a key before someone is listening.
func (p *pendingRegistry) register(idempotencyKey string) chan Outcome {
	ch := make(chan Outcome, 1)
	p.mu.Lock()
	p.waiters[idempotencyKey] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingRegistry) resolve(idempotencyKey string, outcome Outcome) {
	p.mu.Lock()
	ch, ok := p.waiters[idempotencyKey]
	if ok {
		delete(p.waiters, idempotencyKey)
	}
	p.mu.Unlock()
	if ok {
		ch <- outcome
		close(ch)
	}
}

func (p *pendingRegistry) abandon(idempotencyKey string) {
	p.mu.Lock()
	delete(p.waiters, idempotencyKey)
	p.mu.Unlock()
}
