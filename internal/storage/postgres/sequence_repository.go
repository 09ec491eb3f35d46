package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

type sequenceRepository struct {
	db *sql.DB
}

// NewSequenceRepository создаёт PostgreSQL-реализацию SequenceRepository.
func NewSequenceRepository(store *Store) domain.SequenceRepository {
	return &sequenceRepository{db: store.DB()}
}

func (r *sequenceRepository) Get(ctx context.Context, name string) (domain.Sequence, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	seq := domain.Sequence{Name: name}
	err := r.db.QueryRowContext(ctx, `
		SELECT value, version FROM sequences WHERE name = $1
	`, name).Scan(&seq.Value, &seq.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sequence{}, false, nil
	}
	if err != nil {
		return domain.Sequence{}, false, storageErr("get sequence", err)
	}
	return seq, true, nil
}

func (r *sequenceRepository) CompareAndSet(ctx context.Context, name string, expectedVersion, value int64) (domain.Sequence, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if expectedVersion == 0 {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO sequences (name, value, version, updated_at)
			VALUES ($1, $2, 1, $3)
		`, name, value, now)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.Sequence{}, domain.ErrSequenceVersionConflict
			}
			return domain.Sequence{}, storageErr("insert sequence", err)
		}
		return domain.Sequence{Name: name, Value: value, Version: 1}, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE sequences
		SET value = $3, version = version + 1, updated_at = $4
		WHERE name = $1 AND version = $2
	`, name, expectedVersion, value, now)
	if err != nil {
		return domain.Sequence{}, storageErr("update sequence", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Sequence{}, storageErr("rows affected for sequence", err)
	}
	if affected == 0 {
		return domain.Sequence{}, domain.ErrSequenceVersionConflict
	}
	return domain.Sequence{Name: name, Value: value, Version: expectedVersion + 1}, nil
}

var _ domain.SequenceRepository = (*sequenceRepository)(nil)
