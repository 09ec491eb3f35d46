package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/storage/memory"
)

type conflictingSequences struct {
	calls int
}

func (s *conflictingSequences) Get(context.Context, string) (domain.Sequence, bool, error) {
	return domain.Sequence{Name: OrderIDSequence, Value: 17060, Version: 3}, true, nil
}

func (s *conflictingSequences) CompareAndSet(context.Context, string, int64, int64) (domain.Sequence, error) {
	s.calls++
	return domain.Sequence{}, domain.ErrSequenceVersionConflict
}

func ledgerWithLast(customerID, last string) domain.CustomerOrderLedger {
	l := domain.NewLedger(customerID)
	l.LastOrderID = last
	return l
}

func TestNextFromLedgers(t *testing.T) {
	tests := []struct {
		name    string
		ledgers []domain.CustomerOrderLedger
		want    int64
		wantErr error
	}{
		{name: "no ledgers", want: SeedOrderID},
		{name: "single ledger", ledgers: []domain.CustomerOrderLedger{ledgerWithLast("c1", "17050")}, want: 17051},
		{
			name: "max across ledgers",
			ledgers: []domain.CustomerOrderLedger{
				ledgerWithLast("c1", "17055"),
				ledgerWithLast("c2", "17060"),
				ledgerWithLast("c3", ""),
			},
			want: 17061,
		},
		{name: "only empty ids", ledgers: []domain.CustomerOrderLedger{ledgerWithLast("c1", "")}, want: SeedOrderID},
		{
			name:    "unparsable id",
			ledgers: []domain.CustomerOrderLedger{ledgerWithLast("c1", "17050"), ledgerWithLast("c2", "ORD-1")},
			wantErr: domain.ErrInvalidLastOrderID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextFromLedgers(tt.ledgers)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, domain.KindAllocation, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAllocator_SerialIDsAreGapless(t *testing.T) {
	ctx := context.Background()
	allocator := NewAllocator(memory.NewOrderRepository(), memory.NewSequenceRepository())

	for _, want := range []string{"17050", "17051", "17052", "17053"} {
		got, err := allocator.NextOrderID(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestAllocator_BootstrapsFromExistingLedger(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	_, err := repo.SaveLedger(ctx, ledgerWithLast("c1", "17050"))
	require.NoError(t, err)

	allocator := NewAllocator(repo, memory.NewSequenceRepository())

	id, err := allocator.NextOrderID(ctx)
	require.NoError(t, err)
	require.Equal(t, "17051", id)
}

func TestAllocator_InvalidLedgerFails(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	_, err := repo.SaveLedger(ctx, ledgerWithLast("c1", "abc"))
	require.NoError(t, err)

	_, err = NewAllocator(repo, memory.NewSequenceRepository()).NextOrderID(ctx)
	require.ErrorIs(t, err, domain.ErrInvalidLastOrderID)
	require.False(t, domain.IsRetryable(err))
}

func TestAllocator_ConcurrentIDsAreUnique(t *testing.T) {
	const workers = 20

	allocator := NewAllocator(
		memory.NewOrderRepository(),
		memory.NewSequenceRepository(),
		WithMaxAllocationAttempts(workers+5),
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers)
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := allocator.NextOrderID(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[id] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, seen, workers)
	for i := int64(0); i < workers; i++ {
		require.Contains(t, seen, formatID(SeedOrderID+i))
	}
}

func TestAllocator_RaceExhausted(t *testing.T) {
	seqs := &conflictingSequences{}
	allocator := NewAllocator(memory.NewOrderRepository(), seqs, WithMaxAllocationAttempts(3))

	_, err := allocator.NextOrderID(context.Background())
	require.ErrorIs(t, err, domain.ErrAllocationRace)
	require.True(t, domain.IsRetryable(err))
	require.Equal(t, 3, seqs.calls)
}

func TestAllocator_StorageErrorPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAllocator(memory.NewOrderRepository(), memory.NewSequenceRepository()).NextOrderID(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}
