package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

var (
	_ port.BaselineStore   = (*Store)(nil)
	_ port.BaselineUpdater = (*Store)(nil)
	_ port.CorpusStore     = (*Store)(nil)
)

// maxWatchRetries bounds optimistic retries of a baseline update.
const maxWatchRetries = 32

// Store keeps behaviour baselines and the historical corpora in Redis.
//
// Keys:
//
//	{prefix}:baseline:{tenantID}:{subjectID}  JSON BehaviorBaseline
//	{prefix}:corpus:{tenantID}                list of JSON CorpusEntry, newest at the head
type Store struct {
	client    redis.UniversalClient
	prefix    string
	corpusCap int
}

// NewStore creates a Redis-backed store. A non-positive corpusCap falls
// back to model.DefaultCorpusCap.
func NewStore(client redis.UniversalClient, prefix string, corpusCap int) *Store {
	if corpusCap <= 0 {
		corpusCap = model.DefaultCorpusCap
	}
	if prefix == "" {
		prefix = "risk"
	}
	return &Store{client: client, prefix: prefix, corpusCap: corpusCap}
}

func (s *Store) baselineKey(tenantID uuid.UUID, subjectID string) string {
	return fmt.Sprintf("%s:baseline:%s:%s", s.prefix, tenantID, subjectID)
}

func (s *Store) corpusKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("%s:corpus:%s", s.prefix, tenantID)
}

func decodeBaseline(raw []byte, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error) {
	var b model.BehaviorBaseline
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.BehaviorBaseline{}, fmt.Errorf("failed to decode baseline for %s: %w", subjectID, err)
	}
	b.TenantID = tenantID
	b.SubjectID = subjectID
	return b, nil
}

// GetBaseline returns the stored baseline, or a zero baseline carrying
// the tenant and subject when none exists.
func (s *Store) GetBaseline(ctx context.Context, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error) {
	raw, err := s.client.Get(ctx, s.baselineKey(tenantID, subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}, nil
	}
	if err != nil {
		return model.BehaviorBaseline{}, fmt.Errorf("failed to get baseline: %w", err)
	}
	return decodeBaseline(raw, tenantID, subjectID)
}

// SetBaseline replaces the subject's baseline.
func (s *Store) SetBaseline(ctx context.Context, b model.BehaviorBaseline) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	if err := s.client.Set(ctx, s.baselineKey(b.TenantID, b.SubjectID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	return nil
}

// UpdateBaseline applies fn to the stored baseline under WATCH and writes
// the result in MULTI/EXEC, retrying when another writer got there first.
func (s *Store) UpdateBaseline(
	ctx context.Context,
	tenantID uuid.UUID,
	subjectID string,
	fn func(model.BehaviorBaseline) model.BehaviorBaseline,
) (model.BehaviorBaseline, error) {
	key := s.baselineKey(tenantID, subjectID)
	var next model.BehaviorBaseline

	txf := func(tx *redis.Tx) error {
		current := model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeBaseline(raw, tenantID, subjectID); err != nil {
				return err
			}
		}

		next = fn(current)
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode baseline: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return model.BehaviorBaseline{}, fmt.Errorf("failed to update baseline: %w", err)
		}
	}
	return model.BehaviorBaseline{}, fmt.Errorf("failed to update baseline: %d conflicting writers", maxWatchRetries)
}

// AppendEntry pushes the entry and trims the list to the cap inside one
// MULTI/EXEC block.
func (s *Store) AppendEntry(ctx context.Context, entry model.CorpusEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode corpus entry: %w", err)
	}

	key := s.corpusKey(entry.TenantID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, int64(s.corpusCap-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append corpus entry: %w", err)
	}
	return nil
}

// RecentEntries returns up to limit entries of the tenant's corpus, newest
// first. A non-positive limit returns the whole corpus.
func (s *Store) RecentEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.CorpusEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raws, err := s.client.LRange(ctx, s.corpusKey(tenantID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	entries := make([]model.CorpusEntry, 0, len(raws))
	for i, raw := range raws {
		var e model.CorpusEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode corpus entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CorpusLen returns the number of entries retained for the tenant.
func (s *Store) CorpusLen(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	n, err := s.client.LLen(ctx, s.corpusKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read corpus length: %w", err)
	}
	return n, nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: health check: %w", err)
	}
	return nil
}
