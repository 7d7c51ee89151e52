package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

var _ port.CounterpartyStore = (*CounterpartyRepository)(nil)

// CounterpartyRepository keeps running counterparty profiles in PostgreSQL,
// one row per tenant and counterparty name.
// Deltas are applied with additive upserts so concurrent analyses never
// lose counts.
type CounterpartyRepository struct {
	pool *pgxpool.Pool
}

// NewCounterpartyRepository creates a new PostgreSQL-backed counterparty store.
func NewCounterpartyRepository(pool *pgxpool.Pool) *CounterpartyRepository {
	return &CounterpartyRepository{pool: pool}
}

// GetProfiles returns the tenant's stored profiles for names.
func (r *CounterpartyRepository) GetProfiles(ctx context.Context, tenantID uuid.UUID, names []string) (map[string]model.CounterpartyProfile, error) {
	out := make(map[string]model.CounterpartyProfile, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT name, total_transactions, micro_transactions, tiny_transactions,
			total_amount, micro_amount, residue_histogram, suspicious_flags, updated_at
		FROM counterparty_profiles
		WHERE tenant_id = $1 AND name = ANY($2)
	`, tenantID, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparty profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counterparty profiles: %w", err)
	}
	return out, nil
}

// ApplyDeltas adds every delta to its stored profile in one transaction.
// Rows are touched in name order to keep lock acquisition consistent
// across concurrent writers.
func (r *CounterpartyRepository) ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []model.CounterpartyProfile) error {
	if len(deltas) == 0 {
		return nil
	}
	sorted := make([]model.CounterpartyProfile, len(deltas))
	copy(sorted, deltas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		for _, d := range sorted {
			if _, err := tx.Exec(ctx, upsertProfileSQL,
				tenantID,
				d.Name,
				d.TotalTransactions,
				d.MicroTransactions,
				d.TinyTransactions,
				d.TotalAmount,
				d.MicroAmount,
				histogramToDB(d.ResidueHistogram),
				flagsToDB(d.SuspiciousFlags),
				d.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to apply delta for counterparty %q: %w", d.Name, err)
			}
		}
		return nil
	})
}

const upsertProfileSQL = `
	INSERT INTO counterparty_profiles AS p (
		tenant_id, name, total_transactions, micro_transactions, tiny_transactions,
		total_amount, micro_amount, residue_histogram, suspicious_flags, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (tenant_id, name) DO UPDATE SET
		total_transactions = p.total_transactions + EXCLUDED.total_transactions,
		micro_transactions = p.micro_transactions + EXCLUDED.micro_transactions,
		tiny_transactions = p.tiny_transactions + EXCLUDED.tiny_transactions,
		total_amount = p.total_amount + EXCLUDED.total_amount,
		micro_amount = p.micro_amount + EXCLUDED.micro_amount,
		residue_histogram = ARRAY(
			SELECT h.a + h.b
			FROM unnest(p.residue_histogram, EXCLUDED.residue_histogram) WITH ORDINALITY AS h(a, b, i)
			ORDER BY h.i
		),
		suspicious_flags = EXCLUDED.suspicious_flags,
		updated_at = GREATEST(p.updated_at, EXCLUDED.updated_at)
`

func scanProfile(row pgx.Row) (model.CounterpartyProfile, error) {
	var (
		p         model.CounterpartyProfile
		total     int64
		micro     int64
		tiny      int64
		totalAmt  decimal.Decimal
		microAmt  decimal.Decimal
		histogram []int32
		flags     []string
		updatedAt time.Time
	)
	if err := row.Scan(&p.Name, &total, &micro, &tiny, &totalAmt, &microAmt, &histogram, &flags, &updatedAt); err != nil {
		return p, fmt.Errorf("failed to scan counterparty profile: %w", err)
	}

	p.TotalTransactions = int(total)
	p.MicroTransactions = int(micro)
	p.TinyTransactions = int(tiny)
	p.TotalAmount = totalAmt
	p.MicroAmount = microAmt
	p.UpdatedAt = updatedAt.UTC()
	for i := 0; i < len(histogram) && i < model.ResidueBuckets; i++ {
		p.ResidueHistogram[i] = int(histogram[i])
	}
	for _, raw := range flags {
		f, err := valueobject.SuspiciousFlagFromString(raw)
		if err != nil {
			return p, fmt.Errorf("failed to parse flag for counterparty %q: %w", p.Name, err)
		}
		p.SuspiciousFlags = append(p.SuspiciousFlags, f)
	}
	return p, nil
}

func histogramToDB(h [model.ResidueBuckets]int) []int32 {
	out := make([]int32, len(h))
	for i, c := range h {
		out[i] = int32(c)
	}
	return out
}

func flagsToDB(flags []valueobject.SuspiciousFlag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.String())
	}
	return out
}
