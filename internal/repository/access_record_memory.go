package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gymcore/access-service/internal/domain"
)

type memoryAccessRecordRepository struct {
	mu      sync.Mutex
	records []domain.ValidationRecord
	granted map[string]struct{}
}

// NewMemoryAccessRecordRepository returns a process-local access log for development and tests.
// It only enforces single use within one process.
func NewMemoryAccessRecordRepository() AccessRecordRepository {
	return &memoryAccessRecordRepository{granted: make(map[string]struct{})}
}

func (r *memoryAccessRecordRepository) Append(_ context.Context, rec *domain.ValidationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Outcome == domain.AccessGranted && rec.Nonce != "" {
		if _, exists := r.granted[rec.Nonce]; exists {
			return ErrAlreadyGranted
		}
		r.granted[rec.Nonce] = struct{}{}
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *memoryAccessRecordRepository) HasGrant(_ context.Context, nonce string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.granted[nonce]
	return exists, nil
}

func (r *memoryAccessRecordRepository) ListRecent(_ context.Context, filter RecordFilter) ([]domain.ValidationRecord, error) {
	r.mu.Lock()
	matched := make([]domain.ValidationRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.SubjectID != "" && rec.SubjectID != filter.SubjectID {
			continue
		}
		if !filter.Since.IsZero() && rec.AttemptedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, rec)
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AttemptedAt.After(matched[j].AttemptedAt)
	})
	if limit := filter.NormalizedLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memoryAccessRecordRepository) Stats(_ context.Context, since time.Time) (domain.AccessStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.AccessStats{Since: since, ByReason: map[domain.DenialReason]int64{}}
	for _, rec := range r.records {
		if rec.AttemptedAt.Before(since) {
			continue
		}
		stats.Add(rec)
	}
	return stats, nil
}

func (r *memoryAccessRecordRepository) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var pruned int64
	for _, rec := range r.records {
		if rec.AttemptedAt.Before(cutoff) {
			pruned++
			if rec.Outcome == domain.AccessGranted {
				delete(r.granted, rec.Nonce)
			}
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return pruned, nil
}
