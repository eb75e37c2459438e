// Package postgres persists normalized records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
)

const defaultTable = "price_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	URL             string        `mapstructure:"url"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes one row per normalized record, keyed by run and position.
type RecordStore struct {
	pool   pool
	table  string
	logger *zap.Logger
}

// NewRecordStore connects to Postgres using cfg.
func NewRecordStore(ctx context.Context, cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("database.url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRecordStoreWithPool(p, cfg.Table, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool.
func NewRecordStoreWithPool(p pool, table string, logger *zap.Logger) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{pool: p, table: table, logger: logger}, nil
}

// Close releases the underlying pool.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id   TEXT    NOT NULL,
	position INTEGER NOT NULL,
	record   JSONB   NOT NULL,
	PRIMARY KEY (run_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveRun inserts every record of table under runID in one transaction.
// Null cells are stored as JSON nulls.
func (s *RecordStore) SaveRun(ctx context.Context, runID string, table dataset.Table) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := s.insert(ctx, tx, runID, table); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("run_id", runID), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("records stored", zap.String("run_id", runID), zap.Int("records", len(table.Records)), zap.String("table", s.table))
	return nil
}

func (s *RecordStore) insert(ctx context.Context, tx pgx.Tx, runID string, table dataset.Table) error {
	query := fmt.Sprintf(`INSERT INTO %s (run_id, position, record) VALUES ($1, $2, $3)`, s.table)
	for i, rec := range table.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, query, runID, i, data); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return nil
}
