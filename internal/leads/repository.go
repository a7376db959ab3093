package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List results.
type ListFilter struct {
	Limit  int
	Offset int
}

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	Update(ctx context.Context, id string, upd *UpdateLeadRequest) error
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository is a Repository backed by a map, used in development and
// tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	order []string // insertion order, newest appended last
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Message:   req.Message,
		Service:   req.Service,
		Source:    req.Source,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.order = append(r.order, lead.ID)
	r.mu.Unlock()

	return lead, nil
}

// Update applies a partial enrichment to an existing lead.
func (r *InMemoryRepository) Update(ctx context.Context, id string, upd *UpdateLeadRequest) error {
	if upd.IsEmpty() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	if upd.Email != nil {
		lead.Email = *upd.Email
	}
	if upd.Service != nil {
		lead.Service = *upd.Service
	}
	return nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	copied := *lead
	return &copied, nil
}

// List returns leads newest-first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	out := make([]*Lead, 0, filter.Limit)
	skipped := 0
	for i := len(r.order) - 1; i >= 0; i-- {
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if len(out) >= filter.Limit {
			break
		}
		copied := *r.leads[r.order[i]]
		out = append(out, &copied)
	}
	return out, nil
}
