package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// sequenceRepositoryInMemory хранит именованные счётчики в памяти процесса.
type sequenceRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Sequence
}

// NewSequenceRepository создаёт in-memory реализацию SequenceRepository.
func NewSequenceRepository() domain.SequenceRepository {
	return &sequenceRepositoryInMemory{items: make(map[string]domain.Sequence)}
}

func (r *sequenceRepositoryInMemory) Get(ctx context.Context, name string) (domain.Sequence, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sequence{}, false, domain.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, ok := r.items[name]
	return seq, ok, nil
}

// CompareAndSet записывает значение, если версия совпадает с ожидаемой.
func (r *sequenceRepositoryInMemory) CompareAndSet(ctx context.Context, name string, expectedVersion, value int64) (domain.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sequence{}, domain.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[name]
	if !ok && expectedVersion != 0 {
		return domain.Sequence{}, domain.ErrSequenceVersionConflict
	}
	if ok && current.Version != expectedVersion {
		return domain.Sequence{}, domain.ErrSequenceVersionConflict
	}

	next := domain.Sequence{Name: name, Value: value, Version: expectedVersion + 1}
	r.items[name] = next
	return next, nil
}

var _ domain.SequenceRepository = (*sequenceRepositoryInMemory)(nil)
