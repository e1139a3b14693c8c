package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymcore/access-service/internal/domain"
)

// ErrAlreadyGranted is returned by Append when a GRANTED record already exists for the nonce.
var ErrAlreadyGranted = errors.New("nonce already granted")

const (
	defaultRecordLimit = 20
	maxRecordLimit     = 100
)

// RecordFilter narrows ListRecent.
type RecordFilter struct {
	SubjectID string
	Since     time.Time
	Limit     int
}

// NormalizedLimit clamps Limit into the accepted range.
func (f RecordFilter) NormalizedLimit() int {
	if f.Limit <= 0 {
		return defaultRecordLimit
	}
	if f.Limit > maxRecordLimit {
		return maxRecordLimit
	}
	return f.Limit
}

// AccessRecordRepository is the append-only access log.
//
// Append is the single critical section of validation: inserting a GRANTED record is an
// insert-if-absent keyed by nonce, so two concurrent validators of the same credential cannot
// both succeed.
type AccessRecordRepository interface {
	Append(ctx context.Context, rec *domain.ValidationRecord) error
	HasGrant(ctx context.Context, nonce string) (bool, error)
	ListRecent(ctx context.Context, filter RecordFilter) ([]domain.ValidationRecord, error)
	Stats(ctx context.Context, since time.Time) (domain.AccessStats, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type accessRecordRepository struct {
	pool *pgxpool.Pool
}

// NewAccessRecordRepository returns the Postgres access log. Uniqueness of granted nonces is
// enforced by the access_records_granted_nonce_uq partial index.
func NewAccessRecordRepository(pool *pgxpool.Pool) AccessRecordRepository {
	return &accessRecordRepository{pool: pool}
}

func (r *accessRecordRepository) Append(ctx context.Context, rec *domain.ValidationRecord) error {
	const query = `
        INSERT INTO access_records
            (id, subject_id, nonce, attempted_at, outcome, reason, method, station_id, staff_id, manual_reason, notes)
        VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), NULLIF($11,''))
        ON CONFLICT (nonce) WHERE outcome = 'GRANTED' DO NOTHING`

	cmd, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.SubjectID,
		rec.Nonce,
		rec.AttemptedAt,
		rec.Outcome,
		rec.Reason,
		rec.Method,
		rec.StationID,
		rec.StaffID,
		rec.ManualReason,
		rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert access record: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyGranted
	}
	return nil
}

func (r *accessRecordRepository) HasGrant(ctx context.Context, nonce string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM access_records WHERE nonce=$1 AND outcome='GRANTED'
        )`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, nonce).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup nonce: %w", err)
	}
	return exists, nil
}

func (r *accessRecordRepository) ListRecent(ctx context.Context, filter RecordFilter) ([]domain.ValidationRecord, error) {
	query := `
        SELECT id, COALESCE(subject_id,''), COALESCE(nonce,''), attempted_at, outcome,
               COALESCE(reason,''), method, COALESCE(station_id,''), COALESCE(staff_id,''), COALESCE(manual_reason,''), COALESCE(notes,'')
        FROM access_records`
	args := []any{}
	clauses := []string{}

	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		clauses = append(clauses, fmt.Sprintf("subject_id=$%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		clauses = append(clauses, fmt.Sprintf("attempted_at>=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY attempted_at DESC LIMIT %d", filter.NormalizedLimit())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ValidationRecord
	for rows.Next() {
		var rec domain.ValidationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SubjectID,
			&rec.Nonce,
			&rec.AttemptedAt,
			&rec.Outcome,
			&rec.Reason,
			&rec.Method,
			&rec.StationID,
			&rec.StaffID,
			&rec.ManualReason,
			&rec.Notes,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *accessRecordRepository) Stats(ctx context.Context, since time.Time) (domain.AccessStats, error) {
	const query = `
        SELECT outcome, COALESCE(reason,''), method, COUNT(*)
        FROM access_records
        WHERE attempted_at >= $1
        GROUP BY outcome, reason, method`

	stats := domain.AccessStats{Since: since, ByReason: map[domain.DenialReason]int64{}}

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   domain.ValidationRecord
			count int64
		)
		if err := rows.Scan(&rec.Outcome, &rec.Reason, &rec.Method, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		if rec.Method == domain.AccessMethodManual {
			stats.Manual += count
		}
		if rec.Outcome == domain.AccessGranted {
			stats.Granted += count
			continue
		}
		stats.Denied += count
		stats.ByReason[rec.Reason] += count
	}
	return stats, rows.Err()
}

func (r *accessRecordRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM access_records WHERE attempted_at < $1`

	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune access records: %w", err)
	}
	return cmd.RowsAffected(), nil
}
