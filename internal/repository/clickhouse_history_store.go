package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
)

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

// HistorySchema is applied by the ClickHouse client on connect. The
// ReplacingMergeTree keeps the newest row per (asset_id, ts); reads use FINAL.
var HistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
		asset_id   Int64,
		ts         DateTime64(3, 'UTC'),
		open       Float64,
		high       Float64,
		low        Float64,
		close      Float64,
		volume     Float64,
		updated_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (asset_id, ts)`,
}

// CHHistoryStore implements HistoryStore backed by ClickHouse.
type CHHistoryStore struct {
	db *sql.DB
	l  *logger.Logger
}

func NewCHHistoryStore(db *sql.DB, lgr *logger.Logger) *CHHistoryStore {
	return &CHHistoryStore{db: db, l: lgr}
}

func (s *CHHistoryStore) UpsertHistory(ctx context.Context, points []models.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO price_history (asset_id, ts, open, high, low, close, volume, updated_at)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare history batch: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.AssetID, p.Timestamp.UTC(), p.Open, p.High, p.Low, p.Close, p.Volume, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append history row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.l.Error("clickhouse upsert_history commit error", logger.Int("rows", len(points)), logger.Error(err))
		return fmt.Errorf("commit history batch: %w", err)
	}
	s.l.Debug("clickhouse upsert_history ok",
		logger.Int64("asset_id", points[0].AssetID),
		logger.Int("rows", len(points)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHHistoryStore) ListHistory(ctx context.Context, assetID int64, from, to time.Time) ([]models.HistoryPoint, error) {
	conds := []string{"asset_id = ?"}
	args := []interface{}{assetID}
	if !from.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, to.UTC())
	}
	q := fmt.Sprintf(`
        SELECT asset_id, ts, open, high, low, close, volume
        FROM price_history FINAL
        WHERE %s
        ORDER BY ts ASC
    `, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse list_history query error", logger.Int64("asset_id", assetID), logger.Error(err))
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryPoint, 0, 64)
	for rows.Next() {
		var p models.HistoryPoint
		if err := rows.Scan(&p.AssetID, &p.Timestamp, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHHistoryStore) CountHistory(ctx context.Context, assetID int64) (int, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, "SELECT count() FROM price_history FINAL WHERE asset_id = ?", assetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return int(n), nil
}

func (s *CHHistoryStore) DeleteHistory(ctx context.Context, assetID int64) error {
	if _, err := s.db.ExecContext(ctx, "ALTER TABLE price_history DELETE WHERE asset_id = ?", assetID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
