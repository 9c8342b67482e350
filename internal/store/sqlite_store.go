// Package store provides the durable key/value store that survives process restarts.
//
// Records follow a fixed key layout:
//
//	refresh_<tabId> -> {active, minInterval, maxInterval}
//	stats_<tabId>   -> {refreshCount, verifyCount, lastRefresh, startTime}
//	globalConfig    -> {minInterval, maxInterval, autoEnable}
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jmylchreest/refresh-agent/internal/models"
)

const (
	refreshPrefix   = "refresh_"
	statsPrefix     = "stats_"
	globalConfigKey = "globalConfig"
)

// RefreshKey returns the key of a tab's refresh configuration.
func RefreshKey(tabID models.TabID) string { return refreshPrefix + string(tabID) }

// StatsKey returns the key of a tab's statistics.
func StatsKey(tabID models.TabID) string { return statsPrefix + string(tabID) }

// SQLiteStore provides persistent key/value storage backed by SQLite.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool // True if using in-memory database
}

// NewSQLiteStore creates a new SQLite-backed store. dbPath ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	var connStr string
	isMemory := dbPath == ":memory:"

	if isMemory {
		// Each in-memory store gets its own name so stores never share state
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", ulid.Make())
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		isMemory: isMemory,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("SQLite store initialized", "path", dbPath, "in_memory", isMemory)
	return s, nil
}

// migrate creates the necessary tables.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get loads the JSON value stored under key into v. It reports false when the key is absent.
func (s *SQLiteStore) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	query := `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	s.logger.Debug("record persisted", "key", key)
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// Keys returns all keys starting with prefix, sorted.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// LoadRefresh returns a tab's refresh configuration, or nil if none is stored.
func (s *SQLiteStore) LoadRefresh(ctx context.Context, tabID models.TabID) (*models.RefreshConfig, error) {
	var cfg models.RefreshConfig
	ok, err := s.Get(ctx, RefreshKey(tabID), &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// SaveRefresh persists a tab's refresh configuration.
func (s *SQLiteStore) SaveRefresh(ctx context.Context, tabID models.TabID, cfg models.RefreshConfig) error {
	return s.Set(ctx, RefreshKey(tabID), cfg)
}

// ListRefresh returns every stored refresh configuration keyed by tab.
func (s *SQLiteStore) ListRefresh(ctx context.Context) (map[models.TabID]models.RefreshConfig, error) {
	keys, err := s.Keys(ctx, refreshPrefix)
	if err != nil {
		return nil, err
	}

	out := make(map[models.TabID]models.RefreshConfig, len(keys))
	for _, key := range keys {
		var cfg models.RefreshConfig
		ok, err := s.Get(ctx, key, &cfg)
		if err != nil {
			s.logger.Warn("skipping unreadable refresh record", "key", key, "error", err)
			continue
		}
		if ok {
			out[models.TabID(strings.TrimPrefix(key, refreshPrefix))] = cfg
		}
	}
	return out, nil
}

// LoadStats returns a tab's stored statistics, or nil if none is stored.
func (s *SQLiteStore) LoadStats(ctx context.Context, tabID models.TabID) (*models.Stats, error) {
	var stats models.Stats
	ok, err := s.Get(ctx, StatsKey(tabID), &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

// SaveStats persists a tab's statistics.
func (s *SQLiteStore) SaveStats(ctx context.Context, tabID models.TabID, stats models.Stats) error {
	return s.Set(ctx, StatsKey(tabID), stats)
}

// DeleteTab removes every record belonging to a tab.
func (s *SQLiteStore) DeleteTab(ctx context.Context, tabID models.TabID) error {
	return s.Delete(ctx, RefreshKey(tabID), StatsKey(tabID))
}

// LoadGlobal returns the global configuration and whether a record exists.
// When absent the defaults are returned.
func (s *SQLiteStore) LoadGlobal(ctx context.Context) (models.GlobalConfig, bool, error) {
	cfg := models.DefaultGlobalConfig()
	ok, err := s.Get(ctx, globalConfigKey, &cfg)
	if err != nil {
		return models.DefaultGlobalConfig(), false, err
	}
	return cfg, ok, nil
}

// SaveGlobal persists the global configuration.
func (s *SQLiteStore) SaveGlobal(ctx context.Context, cfg models.GlobalConfig) error {
	return s.Set(ctx, globalConfigKey, cfg)
}

// Close closes the database connection.
// Performs a WAL checkpoint first to ensure all data is flushed to the main DB file.
func (s *SQLiteStore) Close() error {
	if !s.isMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	s.logger.Debug("SQLite store closing", "in_memory", s.isMemory)
	return s.db.Close()
}
