package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pimworks/golden-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	product_id  TEXT NOT NULL,
	attribute   TEXT NOT NULL,
	id          TEXT NOT NULL,
	value       JSONB NOT NULL,
	resolved_by TEXT,
	resolved_at TIMESTAMPTZ NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (product_id, attribute)
);

CREATE TABLE IF NOT EXISTS triage_overrides (
	match_id   TEXT PRIMARY KEY,
	decision   TEXT NOT NULL,
	reviewer   TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS promotions (
	product_id TEXT PRIMARY KEY,
	silver_at  TIMESTAMPTZ,
	golden_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_resolutions_product ON resolutions(product_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResolution(ctx context.Context, productID, attribute string, res model.Resolution) error {
	valueJSON, err := json.Marshal(res.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal resolution value")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO resolutions (product_id, attribute, id, value, resolved_by, resolved_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_id, attribute) DO UPDATE SET
		   id = $3, value = $4, resolved_by = $5, resolved_at = $6, version = $7`,
		productID, attribute, res.ID, valueJSON, res.ResolvedBy, res.ResolvedAt.UTC(), res.Version,
	)
	return eris.Wrap(err, "postgres: save resolution")
}

func (s *PostgresStore) GetResolutions(ctx context.Context, productID string) (map[string]model.Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT attribute, id, value, resolved_by, resolved_at, version FROM resolutions WHERE product_id = $1`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get resolutions")
	}
	defer rows.Close()

	resolutions := make(map[string]model.Resolution)
	for rows.Next() {
		var attribute string
		var valueJSON []byte
		var resolvedBy *string
		var res model.Resolution
		if err := rows.Scan(&attribute, &res.ID, &valueJSON, &resolvedBy, &res.ResolvedAt, &res.Version); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		if resolvedBy != nil {
			res.ResolvedBy = *resolvedBy
		}
		if err := json.Unmarshal(valueJSON, &res.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal resolution value")
		}
		resolutions[attribute] = res
	}
	return resolutions, eris.Wrap(rows.Err(), "postgres: get resolutions iterate")
}

func (s *PostgresStore) DeleteResolution(ctx context.Context, productID, attribute string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM resolutions WHERE product_id = $1 AND attribute = $2`,
		productID, attribute,
	)
	return eris.Wrap(err, "postgres: delete resolution")
}

func (s *PostgresStore) SaveTriageOverride(ctx context.Context, matchID string, decision model.TriageDecision, reviewer string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO triage_overrides (match_id, decision, reviewer, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (match_id) DO UPDATE SET decision = $2, reviewer = $3, created_at = $4`,
		matchID, string(decision), reviewer, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save triage override")
}

func (s *PostgresStore) GetTriageOverride(ctx context.Context, matchID string) (model.TriageDecision, bool, error) {
	var decision string
	err := s.pool.QueryRow(ctx,
		`SELECT decision FROM triage_overrides WHERE match_id = $1`,
		matchID,
	).Scan(&decision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, eris.Wrap(err, "postgres: get triage override")
	}
	parsed, ok := model.ParseTriageDecision(decision)
	if !ok {
		return "", false, eris.Errorf("postgres: corrupt triage override %q for match %s", decision, matchID)
	}
	return parsed, true, nil
}

func (s *PostgresStore) RecordPromotion(ctx context.Context, productID string, level model.QualityLevel, at time.Time) error {
	column, err := promotionColumn(level)
	if err != nil {
		return err
	}

	// COALESCE keeps the first timestamp; re-promotion after a demotion does
	// not rewrite history.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO promotions (product_id, `+column+`) VALUES ($1, $2)
		 ON CONFLICT (product_id) DO UPDATE SET `+column+` = COALESCE(promotions.`+column+`, $2)`,
		productID, at.UTC(),
	)
	return eris.Wrap(err, "postgres: record promotion")
}

// CountGolden returns how many products have ever reached golden.
func (s *PostgresStore) CountGolden(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM promotions WHERE golden_at IS NOT NULL`,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count golden")
}

func (s *PostgresStore) GetPromotionTimestamps(ctx context.Context, productID string) (model.PromotionTimestamps, error) {
	var ts model.PromotionTimestamps
	err := s.pool.QueryRow(ctx,
		`SELECT silver_at, golden_at FROM promotions WHERE product_id = $1`,
		productID,
	).Scan(&ts.PromotedToSilverAt, &ts.PromotedToGoldenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PromotionTimestamps{}, nil
		}
		return model.PromotionTimestamps{}, eris.Wrap(err, "postgres: get promotion timestamps")
	}
	return ts, nil
}
