package validate_test

import (
	"context"
	"sync"
	"time"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/validate"
)

// memStore is a mutex-guarded in-memory TicketStore. Its CompareAndSetUsed
// is atomic the way the real store's conditional UPDATE is, which lets the
// at-most-once property be exercised under real goroutine contention.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
	byCode  map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		tickets: make(map[string]models.Ticket),
		byCode:  make(map[string]string),
	}
}

func (m *memStore) GetByTicketID(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, validate.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetByHumanCode(ctx context.Context, code string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, validate.ErrNotFound
	}
	t := m.tickets[id]
	return &t, nil
}

func (m *memStore) CompareAndSetUsed(ctx context.Context, id string, usedAt time.Time, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return validate.ErrNotFound
	}
	if t.Status != models.TicketActive {
		return validate.ErrConflict
	}
	t.Status = models.TicketUsed
	t.UsedAt = usedAt
	t.ValidatedBy = actorID
	m.tickets[id] = t
	return nil
}

func (m *memStore) InsertNewTicket(ctx context.Context, ticket models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[ticket.TicketID] = ticket
	m.byCode[ticket.HumanCode] = ticket.TicketID
	return nil
}
