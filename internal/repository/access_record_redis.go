package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gymcore/access-service/internal/domain"
)

const (
	redisGrantKeyPrefix = "access:grant:"
	redisRecordsKey     = "access:records"
)

// appendScript claims the nonce of a grant and adds the record in one atomic step. The
// sorted set is written before the claim so a failed ZADD leaves the nonce unclaimed.
//
// KEYS[1] grant key, KEYS[2] records key
// ARGV[1] record id, ARGV[2] claim ttl in ms (0 keeps forever), ARGV[3] score,
// ARGV[4] encoded record, ARGV[5] "1" when the record is a grant
var appendScript = redis.NewScript(`
local claim = ARGV[5] == "1"
if claim and redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
if claim then
	local ttl = tonumber(ARGV[2])
	if ttl > 0 then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
	else
		redis.call("SET", KEYS[1], ARGV[1])
	end
end
return 1
`)

type redisAccessRecordRepository struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisAccessRecordRepository stores the access log in Redis. Records live in a sorted
// set scored by attempt time; granted nonces are claimed under their own key, which
// expires after retention.
func NewRedisAccessRecordRepository(client *redis.Client, retention time.Duration) AccessRecordRepository {
	return &redisAccessRecordRepository{client: client, retention: retention}
}

type storedRecord struct {
	ID           string                   `json:"id"`
	SubjectID    string                   `json:"subject_id,omitempty"`
	Nonce        string                   `json:"nonce,omitempty"`
	AttemptedAt  time.Time                `json:"attempted_at"`
	Outcome      domain.AccessOutcome     `json:"outcome"`
	Reason       domain.DenialReason      `json:"reason,omitempty"`
	Method       domain.AccessMethod      `json:"method"`
	StationID    string                   `json:"station_id,omitempty"`
	StaffID      string                   `json:"staff_id,omitempty"`
	ManualReason domain.ManualEntryReason `json:"manual_reason,omitempty"`
	Notes        string                   `json:"notes,omitempty"`
}

func (r *redisAccessRecordRepository) Append(ctx context.Context, rec *domain.ValidationRecord) error {
	payload, err := json.Marshal(storedRecord(*rec))
	if err != nil {
		return fmt.Errorf("encode access record: %w", err)
	}

	claim := "0"
	if rec.Outcome == domain.AccessGranted && rec.Nonce != "" {
		claim = "1"
	}
	keys := []string{redisGrantKeyPrefix + rec.Nonce, redisRecordsKey}
	added, err := appendScript.Run(ctx, r.client, keys,
		rec.ID,
		r.retention.Milliseconds(),
		rec.AttemptedAt.UnixMilli(),
		payload,
		claim,
	).Int()
	if err != nil {
		return fmt.Errorf("append access record: %w", err)
	}
	if added == 0 {
		return ErrAlreadyGranted
	}
	return nil
}

func (r *redisAccessRecordRepository) HasGrant(ctx context.Context, nonce string) (bool, error) {
	n, err := r.client.Exists(ctx, redisGrantKeyPrefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("lookup nonce: %w", err)
	}
	return n > 0, nil
}

func (r *redisAccessRecordRepository) ListRecent(ctx context.Context, filter RecordFilter) ([]domain.ValidationRecord, error) {
	limit := filter.NormalizedLimit()
	query := &redis.ZRangeBy{Min: scoreMin(filter.Since), Max: "+inf"}
	if filter.SubjectID == "" {
		query.Count = int64(limit)
	}

	members, err := r.client.ZRevRangeByScore(ctx, redisRecordsKey, query).Result()
	if err != nil {
		return nil, fmt.Errorf("list access records: %w", err)
	}

	result := make([]domain.ValidationRecord, 0, len(members))
	for _, member := range members {
		rec, err := decodeStoredRecord(member)
		if err != nil {
			return nil, err
		}
		if filter.SubjectID != "" && rec.SubjectID != filter.SubjectID {
			continue
		}
		result = append(result, rec)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *redisAccessRecordRepository) Stats(ctx context.Context, since time.Time) (domain.AccessStats, error) {
	stats := domain.AccessStats{Since: since, ByReason: map[domain.DenialReason]int64{}}

	members, err := r.client.ZRangeByScore(ctx, redisRecordsKey, &redis.ZRangeBy{
		Min: scoreMin(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return stats, fmt.Errorf("read access records: %w", err)
	}
	for _, member := range members {
		rec, err := decodeStoredRecord(member)
		if err != nil {
			return stats, err
		}
		stats.Add(rec)
	}
	return stats, nil
}

func (r *redisAccessRecordRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := r.client.ZRemRangeByScore(ctx, redisRecordsKey, "-inf", upper).Result()
	if err != nil {
		return 0, fmt.Errorf("prune access records: %w", err)
	}
	return n, nil
}

func scoreMin(since time.Time) string {
	if since.IsZero() {
		return "-inf"
	}
	return strconv.FormatInt(since.UnixMilli(), 10)
}

func decodeStoredRecord(member string) (domain.ValidationRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(member), &stored); err != nil {
		return domain.ValidationRecord{}, fmt.Errorf("decode access record: %w", err)
	}
	return domain.ValidationRecord(stored), nil
}
