package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepositoryInMemory — in-memory очередь писем на повторную отправку.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет сообщение со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, domain.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending`, старые первыми.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самой старой pending-записи.
func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус после успешной отправки.
func (r *outboxRepositoryInMemory) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

// MarkFailed фиксирует, что попытки отправки исчерпаны.
func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result
}

func (r *outboxRepositoryInMemory) mark(ctx context.Context, id, status string) error {
	if err := ctx.Err(); err != nil {
		return domain.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.now()
	return nil
}

func (r *outboxRepositoryInMemory) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].createdAt.Equal(pending[j].createdAt) {
			return pending[i].createdAt.Before(pending[j].createdAt)
		}
		return pending[i].msg.ID < pending[j].msg.ID
	})
	return pending
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
