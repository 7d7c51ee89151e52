package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

var (
	_ port.BaselineStore      = (*Store)(nil)
	_ port.BaselineUpdater    = (*Store)(nil)
	_ port.CorpusStore        = (*Store)(nil)
	_ port.CounterpartyStore  = (*Store)(nil)
	_ port.AnalysisRepository = (*Store)(nil)
)

// Key layout.
const (
	baselinePrefix     = "baseline/"
	corpusPrefix       = "corpus/"
	counterpartyPrefix = "counterparty/"
	analysisPrefix     = "analysis/"
	corpusLenPrefix    = "meta/corpus_len/"
	corpusSeqKey       = "meta/corpus_seq"

	maxConflictRetries = 64
)

// Store is an embedded, disk-backed implementation of every state port,
// used by the offline CLI.
type Store struct {
	db        *badger.DB
	seq       *badger.Sequence
	corpusCap int
}

// Open opens (or creates) a store at path. An empty path opens an
// in-memory store.
func Open(path string, corpusCap int) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	seq, err := db.GetSequence([]byte(corpusSeqKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("leasing corpus sequence: %w", err)
	}
	if corpusCap <= 0 {
		corpusCap = model.DefaultCorpusCap
	}
	return &Store{db: db, seq: seq, corpusCap: corpusCap}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
	}
}

func getJSON(txn *badger.Txn, key []byte, dst any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(v []byte) error { return json.Unmarshal(v, dst) })
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// --- Baselines ---

func baselineKey(tenantID uuid.UUID, subjectID string) []byte {
	return []byte(baselinePrefix + tenantID.String() + "/" + subjectID)
}

// GetBaseline returns the stored baseline, or a zero baseline carrying the
// tenant and subject.
func (s *Store) GetBaseline(_ context.Context, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error) {
	b := model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getJSON(txn, baselineKey(tenantID, subjectID), &b)
		return err
	})
	if err != nil {
		return model.BehaviorBaseline{}, fmt.Errorf("reading baseline: %w", err)
	}
	return b, nil
}

// SetBaseline replaces the subject's baseline.
func (s *Store) SetBaseline(ctx context.Context, b model.BehaviorBaseline) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, baselineKey(b.TenantID, b.SubjectID), b)
	})
	if err != nil {
		return fmt.Errorf("writing baseline: %w", err)
	}
	return nil
}

// UpdateBaseline applies fn inside one transaction; conflicting writers
// are retried.
func (s *Store) UpdateBaseline(
	ctx context.Context,
	tenantID uuid.UUID,
	subjectID string,
	fn func(model.BehaviorBaseline) model.BehaviorBaseline,
) (model.BehaviorBaseline, error) {
	var next model.BehaviorBaseline
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := baselineKey(tenantID, subjectID)
		current := model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}
		if _, err := getJSON(txn, key, &current); err != nil {
			return err
		}
		next = fn(current)
		return setJSON(txn, key, next)
	})
	if err != nil {
		return model.BehaviorBaseline{}, fmt.Errorf("updating baseline: %w", err)
	}
	return next, nil
}

// --- Corpus ---

func corpusTenantPrefix(tenantID uuid.UUID) []byte {
	return []byte(corpusPrefix + tenantID.String() + "/")
}

func corpusKey(tenantID uuid.UUID, seq uint64) []byte {
	prefix := corpusTenantPrefix(tenantID)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func corpusLenKey(tenantID uuid.UUID) []byte {
	return []byte(corpusLenPrefix + tenantID.String())
}

func readCount(txn *badger.Txn, tenantID uuid.UUID) (uint64, error) {
	item, err := txn.Get(corpusLenKey(tenantID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(v []byte) error {
		n = binary.BigEndian.Uint64(v)
		return nil
	})
	return n, err
}

func writeCount(txn *badger.Txn, tenantID uuid.UUID, n uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return txn.Set(corpusLenKey(tenantID), buf)
}

// AppendEntry writes the entry to its tenant's corpus and evicts that
// tenant's oldest entries past the cap in the same transaction.
func (s *Store) AppendEntry(ctx context.Context, entry model.CorpusEntry) error {
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("allocating corpus sequence: %w", err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding corpus entry: %w", err)
	}
	tenantID := entry.TenantID

	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(corpusKey(tenantID, seq), raw); err != nil {
			return err
		}
		n, err := readCount(txn, tenantID)
		if err != nil {
			return err
		}
		n++

		if excess := int(n) - s.corpusCap; excess > 0 {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = corpusTenantPrefix(tenantID)
			it := txn.NewIterator(opts)
			var stale [][]byte
			for it.Rewind(); it.Valid() && len(stale) < excess; it.Next() {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			n -= uint64(len(stale))
		}
		return writeCount(txn, tenantID, n)
	})
	if err != nil {
		return fmt.Errorf("appending corpus entry: %w", err)
	}
	return nil
}

// RecentEntries returns up to limit entries of the tenant's corpus, newest
// first. A non-positive limit returns the whole corpus.
func (s *Store) RecentEntries(_ context.Context, tenantID uuid.UUID, limit int) ([]model.CorpusEntry, error) {
	var entries []model.CorpusEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = corpusTenantPrefix(tenantID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(corpusKey(tenantID, ^uint64(0))); it.Valid(); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e model.CorpusEntry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return entries, nil
}

// CorpusLen returns the number of entries retained for the tenant.
func (s *Store) CorpusLen(tenantID uuid.UUID) (int, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCount(txn, tenantID)
		return err
	})
	return int(n), err
}

// --- Counterparties ---

func counterpartyKey(tenantID uuid.UUID, name string) []byte {
	return []byte(counterpartyPrefix + tenantID.String() + "/" + name)
}

// GetProfiles returns the tenant's stored profiles for names.
func (s *Store) GetProfiles(_ context.Context, tenantID uuid.UUID, names []string) (map[string]model.CounterpartyProfile, error) {
	out := make(map[string]model.CounterpartyProfile, len(names))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range names {
			var p model.CounterpartyProfile
			found, err := getJSON(txn, counterpartyKey(tenantID, name), &p)
			if err != nil {
				return err
			}
			if found {
				out[name] = p
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading counterparty profiles: %w", err)
	}
	return out, nil
}

// ApplyDeltas merges every delta into the tenant's profile in one transaction.
func (s *Store) ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []model.CounterpartyProfile) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, d := range deltas {
			key := counterpartyKey(tenantID, d.Name)
			var stored model.CounterpartyProfile
			if _, err := getJSON(txn, key, &stored); err != nil {
				return err
			}
			merged := stored.Merge(d)
			merged.SuspiciousFlags = d.SuspiciousFlags
			if err := setJSON(txn, key, merged); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying counterparty deltas: %w", err)
	}
	return nil
}

// --- Analyses ---

type analysisRecord struct {
	CreatedAt        time.Time            `json:"created_at"`
	SubjectID        string               `json:"subject_id"`
	Result           model.AnalysisResult `json:"result"`
	TransactionCount int                  `json:"transaction_count"`
	ID               uuid.UUID            `json:"id"`
	TenantID         uuid.UUID            `json:"tenant_id"`
}

func analysisKey(tenantID, id uuid.UUID) []byte {
	return []byte(analysisPrefix + tenantID.String() + "/" + id.String())
}

func (r analysisRecord) toModel() *model.Analysis {
	return model.ReconstructAnalysis(r.ID, r.TenantID, r.SubjectID, r.TransactionCount, r.Result, r.CreatedAt)
}

// Save stores the analysis.
func (s *Store) Save(ctx context.Context, a *model.Analysis) error {
	rec := analysisRecord{
		ID:               a.ID(),
		TenantID:         a.TenantID(),
		SubjectID:        a.SubjectID(),
		TransactionCount: a.TransactionCount(),
		Result:           a.Result(),
		CreatedAt:        a.CreatedAt(),
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, analysisKey(rec.TenantID, rec.ID), rec)
	})
	if err != nil {
		return fmt.Errorf("saving analysis: %w", err)
	}
	return nil
}

// FindByID returns the analysis or port.ErrNotFound.
func (s *Store) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Analysis, error) {
	var rec analysisRecord
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, analysisKey(tenantID, id), &rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading analysis: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("analysis %s: %w", id, port.ErrNotFound)
	}
	return rec.toModel(), nil
}

// FindBySubject lists analyses for a subject, newest first.
func (s *Store) FindBySubject(_ context.Context, tenantID uuid.UUID, subjectID string, limit, offset int) ([]*model.Analysis, error) {
	var recs []analysisRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(analysisPrefix + tenantID.String() + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec analysisRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			if rec.SubjectID == subjectID {
				recs = append(recs, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if offset >= len(recs) {
		return nil, nil
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}

	out := make([]*model.Analysis, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}
