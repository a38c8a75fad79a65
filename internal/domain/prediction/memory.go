package prediction

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

// MemoryRunRepository keeps the most recent runs in process memory. It backs
// run lookups when no database is configured.
type MemoryRunRepository struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
	limit int
}

// NewMemoryRunRepository keeps at most limit runs; older ones are evicted.
func NewMemoryRunRepository(limit int) *MemoryRunRepository {
	if limit <= 0 {
		limit = 256
	}
	return &MemoryRunRepository{runs: make(map[string]*Run), limit: limit}
}

func (m *MemoryRunRepository) Save(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = &cp
	for len(m.order) > m.limit {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryRunRepository) FindByID(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeRunNotFound, apperrors.DefaultMessageForCode(apperrors.ErrCodeRunNotFound)).WithDetail(id)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryRunRepository) List(_ context.Context, page common.Pagination) ([]*Run, int64, error) {
	page = page.Normalize()
	m.mu.RLock()
	all := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		all = append(all, r.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := page.Offset()
	if start >= len(all) {
		return []*Run{}, total, nil
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

var _ RunRepository = (*MemoryRunRepository)(nil)

//Personal.AI order the ending
