package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/usage"
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// SQLiteStore stores usage records in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config *config.SQLiteConfig
	opts   options
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies pragmas and creates the schema.
func NewSQLiteStore(cfg *config.SQLiteConfig, opts ...Option) (*SQLiteStore, error) {
	if cfg == nil {
		cfg = &config.SQLiteConfig{
			Path:         config.DefaultSQLitePath,
			Driver:       config.DefaultSQLiteDriver,
			MaxOpenConns: config.DefaultSQLiteMaxOpenConns,
			WALMode:      true,
			BusyTimeout:  config.DefaultSQLiteBusyTimeout,
		}
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverModernc
	}

	logger := slog.Default().With("component", "store.sqlite")

	db, err := sql.Open(driver, cfg.Path)
	if err != nil {
		return nil, usage.NewStorageError(BackendSQLite, "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLiteStore{
		db:     db,
		config: cfg,
		opts:   newOptions(opts),
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized",
		"path", cfg.Path,
		"driver", driver,
		"wal_mode", cfg.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return usage.NewStorageError(BackendSQLite, "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return usage.NewStorageError(BackendSQLite, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return usage.NewStorageError(BackendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return usage.NewStorageError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return usage.NewStorageError(BackendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return usage.NewStorageError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Put implements usage.Writer.
func (s *SQLiteStore) Put(ctx context.Context, rec *usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	args, err := insertArgs(newItem(rec, s.opts.expiresAt()))
	if err != nil {
		return usage.NewStorageError(BackendSQLite, "marshal", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertRecord, args...); err != nil {
		return usage.NewStorageError(BackendSQLite, "put", err)
	}
	return nil
}

// BatchPut implements usage.Writer. Each chunk is written in one
// transaction; a failed transaction rejects the whole chunk and the
// remaining chunks are still attempted.
func (s *SQLiteStore) BatchPut(ctx context.Context, records []*usage.Record) (*usage.BatchResult, error) {
	result := &usage.BatchResult{}
	valid := splitValid(records, result)
	expires := s.opts.expiresAt()

	var errs []error
	for _, batch := range chunk(valid, s.opts.batchSize) {
		if err := s.writeTx(ctx, batch, expires); err != nil {
			result.Reject(batch...)
			errs = append(errs, usage.NewStorageError(BackendSQLite, "batch_put", err))
			continue
		}
		result.Succeeded += len(batch)
	}
	return result, errors.Join(errs...)
}

func (s *SQLiteStore) writeTx(ctx context.Context, batch []*usage.Record, expires int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range batch {
		args, err := insertArgs(newItem(rec, expires))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ByAgent implements usage.Reader.
func (s *SQLiteStore) ByAgent(ctx context.Context, agentID string, dates *usage.DateRange, limit int) ([]*usage.Record, error) {
	where := []string{"agent_id = ?"}
	args := []any{agentID}
	if dates != nil {
		start, end := dates.Bounds()
		where = append(where, "timestamp BETWEEN ? AND ?")
		args = append(args, formatTimestamp(start), formatTimestamp(end))
	}
	return s.query(ctx, "agent", where, args, limit)
}

// ByIncident implements usage.Reader.
func (s *SQLiteStore) ByIncident(ctx context.Context, incidentID string, limit int) ([]*usage.Record, error) {
	return s.query(ctx, "incident", []string{"incident_id = ?"}, []any{incidentID}, limit)
}

// ByDateRange implements usage.Reader.
func (s *SQLiteStore) ByDateRange(ctx context.Context, start, end time.Time, agentID string, limit int) ([]*usage.Record, error) {
	where := []string{"date_partition BETWEEN ? AND ?"}
	args := []any{usage.PartitionKey(start), usage.PartitionKey(end)}
	if agentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, agentID)
	}
	return s.query(ctx, "date_partition", where, args, limit)
}

func (s *SQLiteStore) query(ctx context.Context, index string, where []string, args []any, limit int) ([]*usage.Record, error) {
	q := selectColumns + " WHERE " + strings.Join(where, " AND ") + " ORDER BY timestamp DESC, agent_id ASC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, usage.NewQueryError(index, err)
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, usage.NewStorageError(BackendSQLite, "scan", err)
		}
		rec, err := it.record()
		if err != nil {
			return nil, usage.NewStorageError(BackendSQLite, "scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewQueryError(index, err)
	}
	return records, nil
}

// PurgeExpired deletes rows whose expiry has passed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM usage_records WHERE expires_at < ?", s.opts.now().Unix())
	if err != nil {
		return 0, usage.NewStorageError(BackendSQLite, "purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, usage.NewStorageError(BackendSQLite, "purge", err)
	}
	s.logger.InfoContext(ctx, "purged expired records", "deleted_count", n)
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements usage.Store.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return usage.NewStorageError(BackendSQLite, "close", err)
	}
	s.logger.Info("SQLite store closed")
	return nil
}

func insertArgs(it item) ([]any, error) {
	var ctxJSON any
	if len(it.Context) > 0 {
		b, err := json.Marshal(it.Context)
		if err != nil {
			return nil, err
		}
		ctxJSON = string(b)
	}
	return []any{
		it.DatePartition, it.TimestampAgent, it.Timestamp, nullable(it.RequestID),
		it.AgentID, it.ModelID, nullable(it.IncidentID),
		it.InputTokens, it.OutputTokens, it.TotalTokens, it.EstimatedCost,
		ctxJSON, it.ExpiresAt,
	}, nil
}

func scanItem(rows *sql.Rows) (item, error) {
	var it item
	var requestID, incidentID, ctxJSON sql.NullString
	err := rows.Scan(
		&it.DatePartition, &it.TimestampAgent, &it.Timestamp, &requestID,
		&it.AgentID, &it.ModelID, &incidentID,
		&it.InputTokens, &it.OutputTokens, &it.TotalTokens, &it.EstimatedCost,
		&ctxJSON, &it.ExpiresAt,
	)
	if err != nil {
		return it, err
	}
	it.RequestID = requestID.String
	it.IncidentID = incidentID.String
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &it.Context); err != nil {
			return it, fmt.Errorf("decode context: %w", err)
		}
	}
	return it, nil
}

// nullable maps "" to NULL so optional columns stay out of their indexes.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
