package database

import (
	"fmt"
	"time"
)

var _ ErrorRepository = (*ErrRepo)(nil)

// ErrRepo is the append-only error sink written by the updater and read by
// the health endpoint.
type ErrRepo struct {
	db Querier
}

func NewErrorRepository(db Querier) *ErrRepo {
	return &ErrRepo{db: db}
}

func (r *ErrRepo) Record(message string, at time.Time) error {
	_, err := r.db.Exec(`INSERT INTO errors (error, time) VALUES (?, ?)`, message, at)
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

func (r *ErrRepo) Recent(limit int) ([]ErrorRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, COALESCE(error, ''), time
		FROM errors
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list errors: %w", err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var record ErrorRecord
		if err := rows.Scan(&record.ID, &record.Error, &record.Time); err != nil {
			return nil, fmt.Errorf("failed to scan error row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error rows: %w", err)
	}

	return records, nil
}
