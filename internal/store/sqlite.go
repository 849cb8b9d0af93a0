package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pimworks/golden-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	product_id  TEXT NOT NULL,
	attribute   TEXT NOT NULL,
	id          TEXT NOT NULL,
	value       TEXT NOT NULL,
	resolved_by TEXT,
	resolved_at DATETIME NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (product_id, attribute)
);

CREATE TABLE IF NOT EXISTS triage_overrides (
	match_id   TEXT PRIMARY KEY,
	decision   TEXT NOT NULL,
	reviewer   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS promotions (
	product_id   TEXT PRIMARY KEY,
	silver_at    DATETIME,
	golden_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_resolutions_product ON resolutions(product_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResolution(ctx context.Context, productID, attribute string, res model.Resolution) error {
	valueJSON, err := json.Marshal(res.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal resolution value")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (product_id, attribute, id, value, resolved_by, resolved_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id, attribute) DO UPDATE SET
		   id = excluded.id, value = excluded.value, resolved_by = excluded.resolved_by,
		   resolved_at = excluded.resolved_at, version = excluded.version`,
		productID, attribute, res.ID, string(valueJSON), res.ResolvedBy, res.ResolvedAt.UTC(), res.Version,
	)
	return eris.Wrap(err, "sqlite: save resolution")
}

func (s *SQLiteStore) GetResolutions(ctx context.Context, productID string) (map[string]model.Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attribute, id, value, resolved_by, resolved_at, version FROM resolutions WHERE product_id = ?`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get resolutions")
	}
	defer rows.Close()

	resolutions := make(map[string]model.Resolution)
	for rows.Next() {
		var attribute, valueJSON string
		var resolvedBy sql.NullString
		var res model.Resolution
		if err := rows.Scan(&attribute, &res.ID, &valueJSON, &resolvedBy, &res.ResolvedAt, &res.Version); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		if resolvedBy.Valid {
			res.ResolvedBy = resolvedBy.String
		}
		if err := json.Unmarshal([]byte(valueJSON), &res.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal resolution value")
		}
		resolutions[attribute] = res
	}
	return resolutions, eris.Wrap(rows.Err(), "sqlite: get resolutions iterate")
}

func (s *SQLiteStore) DeleteResolution(ctx context.Context, productID, attribute string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM resolutions WHERE product_id = ? AND attribute = ?`,
		productID, attribute,
	)
	return eris.Wrap(err, "sqlite: delete resolution")
}

func (s *SQLiteStore) SaveTriageOverride(ctx context.Context, matchID string, decision model.TriageDecision, reviewer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triage_overrides (match_id, decision, reviewer, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (match_id) DO UPDATE SET decision = excluded.decision, reviewer = excluded.reviewer, created_at = excluded.created_at`,
		matchID, string(decision), reviewer, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save triage override")
}

func (s *SQLiteStore) GetTriageOverride(ctx context.Context, matchID string) (model.TriageDecision, bool, error) {
	var decision string
	err := s.db.QueryRowContext(ctx,
		`SELECT decision FROM triage_overrides WHERE match_id = ?`,
		matchID,
	).Scan(&decision)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get triage override")
	}
	parsed, ok := model.ParseTriageDecision(decision)
	if !ok {
		return "", false, eris.Errorf("sqlite: corrupt triage override %q for match %s", decision, matchID)
	}
	return parsed, true, nil
}

func (s *SQLiteStore) RecordPromotion(ctx context.Context, productID string, level model.QualityLevel, at time.Time) error {
	column, err := promotionColumn(level)
	if err != nil {
		return err
	}

	// COALESCE keeps the first timestamp; re-promotion after a demotion does
	// not rewrite history.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO promotions (product_id, `+column+`) VALUES (?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET `+column+` = COALESCE(promotions.`+column+`, excluded.`+column+`)`,
		productID, at.UTC(),
	)
	return eris.Wrap(err, "sqlite: record promotion")
}

func (s *SQLiteStore) GetPromotionTimestamps(ctx context.Context, productID string) (model.PromotionTimestamps, error) {
	var ts model.PromotionTimestamps
	err := s.db.QueryRowContext(ctx,
		`SELECT silver_at, golden_at FROM promotions WHERE product_id = ?`,
		productID,
	).Scan(&ts.PromotedToSilverAt, &ts.PromotedToGoldenAt)
	if err == sql.ErrNoRows {
		return model.PromotionTimestamps{}, nil
	}
	if err != nil {
		return model.PromotionTimestamps{}, eris.Wrap(err, "sqlite: get promotion timestamps")
	}
	return ts, nil
}

// CountGolden returns how many products have ever reached golden.
func (s *SQLiteStore) CountGolden(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM promotions WHERE golden_at IS NOT NULL`,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count golden")
}

func promotionColumn(level model.QualityLevel) (string, error) {
	switch level {
	case model.QualitySilver:
		return "silver_at", nil
	case model.QualityGolden:
		return "golden_at", nil
	default:
		return "", eris.Errorf("store: no promotion timestamp for level %q", level)
	}
}
