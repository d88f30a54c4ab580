// Package cachestore persists resolve results and build records in SQLite so
// a restarted daemon starts warm. Every persisted resolution carries the
// stamps of the files and directories it was derived from; entries whose
// stamps no longer match the disk are discarded on load.
package cachestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jspack/internal/engine/resolver"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// FileStamp records what a path looked like when an entry was derived.
type FileStamp struct {
	ModTime int64 `json:"mtime"`
	Size    int64 `json:"size"`
	Dir     bool  `json:"dir,omitempty"`
	Missing bool  `json:"missing,omitempty"`
}

// StampPath stats path through fsys.
func StampPath(fsys resolver.FS, path string) FileStamp {
	info, err := fsys.Stat(path)
	if err != nil {
		return FileStamp{Missing: true}
	}
	st := FileStamp{ModTime: info.ModTime().UnixNano(), Dir: info.IsDir()}
	if !st.Dir {
		st.Size = info.Size()
	}
	return st
}

// Entry is one persisted resolution.
type Entry struct {
	Key    resolver.CacheKey
	Result resolver.Resolved
	Deps   []string
	Stamps map[string]FileStamp
}

// NewEntry snapshots a cached resolution. Only successful resolutions are
// worth persisting; failures are re-resolved anyway after any change.
func NewEntry(fsys resolver.FS, key resolver.CacheKey, ce resolver.CacheEntry) (Entry, bool) {
	res, ok := ce.Result.(resolver.Resolved)
	if !ok {
		return Entry{}, false
	}
	paths := []string{key.Dir}
	if !res.IsExternal() {
		paths = append(paths, res.Path, filepath.Dir(res.Path))
	}
	paths = append(paths, ce.Deps...)
	stamps := make(map[string]FileStamp, len(paths))
	for _, p := range paths {
		if _, done := stamps[p]; !done {
			stamps[p] = StampPath(fsys, p)
		}
	}
	return Entry{Key: key, Result: res, Deps: ce.Deps, Stamps: stamps}, true
}

// Fresh reports whether every recorded stamp still matches the disk.
func (e Entry) Fresh(fsys resolver.FS) bool {
	for path, want := range e.Stamps {
		if StampPath(fsys, path) != want {
			return false
		}
	}
	return true
}

func (e Entry) CacheEntry() resolver.CacheEntry {
	return resolver.CacheEntry{Result: e.Result, Deps: e.Deps}
}

// BuildRecord summarizes one bundle build.
type BuildRecord struct {
	BuildID   string
	Entry     string
	Timestamp time.Time
	Duration  time.Duration
	Modules   int
	CodeBytes int
	CSSBytes  int
	Warnings  int
	Status    string
	Error     string
}

type Store struct {
	path       string
	projectKey string
	db         *sql.DB
	mu         sync.Mutex
}

func Open(path, projectKey string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("cache store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("cache store path %q is a directory, expected file", cleanPath)
	}
	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache store directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite cache store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	key := strings.TrimSpace(projectKey)
	if key == "" {
		key = "default"
	}
	return &Store{path: cleanPath, projectKey: key, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveEntries upserts entries in one transaction.
func (s *Store) SaveEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry("save resolve entries", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := upsertEntry(tx, s.projectKey, e); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func upsertEntry(tx *sql.Tx, projectKey string, e Entry) error {
	deps, err := json.Marshal(e.Deps)
	if err != nil {
		return fmt.Errorf("encode deps: %w", err)
	}
	stamps, err := json.Marshal(e.Stamps)
	if err != nil {
		return fmt.Errorf("encode stamps: %w", err)
	}
	_, err = tx.Exec(`
INSERT INTO resolve_entries (project_key, dir, specifier, conditions, path, kind, deps, stamps, updated_at_utc)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_key, dir, specifier, conditions) DO UPDATE SET
  path=excluded.path,
  kind=excluded.kind,
  deps=excluded.deps,
  stamps=excluded.stamps,
  updated_at_utc=excluded.updated_at_utc
`, projectKey, e.Key.Dir, e.Key.Specifier, e.Key.Conditions, e.Result.Path, string(e.Result.Kind),
		string(deps), string(stamps), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// LoadEntries returns every fresh entry and deletes the stale ones. It
// reports how many were discarded.
func (s *Store) LoadEntries(fsys resolver.FS) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load resolve entries", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT dir, specifier, conditions, path, kind, deps, stamps
FROM resolve_entries
WHERE project_key = ?
ORDER BY dir, specifier, conditions`, s.projectKey)
		return qErr
	})
	if err != nil {
		return nil, 0, err
	}

	var fresh, stale []Entry
	for rows.Next() {
		var (
			e                 Entry
			kind, deps, stamp string
		)
		if err := rows.Scan(&e.Key.Dir, &e.Key.Specifier, &e.Key.Conditions, &e.Result.Path, &kind, &deps, &stamp); err != nil {
			_ = rows.Close()
			return nil, 0, fmt.Errorf("scan resolve entry: %w", err)
		}
		e.Result.Kind = resolver.Kind(kind)
		if json.Unmarshal([]byte(deps), &e.Deps) != nil || json.Unmarshal([]byte(stamp), &e.Stamps) != nil {
			stale = append(stale, e)
			continue
		}
		if e.Fresh(fsys) {
			fresh = append(fresh, e)
		} else {
			stale = append(stale, e)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, 0, fmt.Errorf("iterate resolve entries: %w", err)
	}
	_ = rows.Close()

	if len(stale) > 0 {
		err := s.withRetry("prune stale entries", func() error {
			tx, err := s.db.Begin()
			if err != nil {
				return err
			}
			for _, e := range stale {
				if _, err := tx.Exec(`DELETE FROM resolve_entries WHERE project_key = ? AND dir = ? AND specifier = ? AND conditions = ?`,
					s.projectKey, e.Key.Dir, e.Key.Specifier, e.Key.Conditions); err != nil {
					_ = tx.Rollback()
					return err
				}
			}
			return tx.Commit()
		})
		if err != nil {
			return nil, 0, err
		}
	}
	return fresh, len(stale), nil
}

// Clear drops every resolve entry of the project.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withRetry("clear resolve entries", func() error {
		_, err := s.db.Exec(`DELETE FROM resolve_entries WHERE project_key = ?`, s.projectKey)
		return err
	})
}

func (s *Store) RecordBuild(rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return s.withRetry("record build", func() error {
		_, err := s.db.Exec(`
INSERT OR REPLACE INTO builds (
  build_id, project_key, entry, ts_utc, duration_ms, module_count, code_bytes, css_bytes,
  warning_count, status, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.BuildID, s.projectKey, rec.Entry, rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.Duration.Milliseconds(), rec.Modules, rec.CodeBytes, rec.CSSBytes,
			rec.Warnings, rec.Status, rec.Error)
		return err
	})
}

// RecentBuilds returns up to limit build records, newest first.
func (s *Store) RecentBuilds(limit int) ([]BuildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	var rows *sql.Rows
	err := s.withRetry("load builds", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT build_id, entry, ts_utc, duration_ms, module_count, code_bytes, css_bytes, warning_count, status, error
FROM builds
WHERE project_key = ?
ORDER BY ts_utc DESC
LIMIT ?`, s.projectKey, limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			rec        BuildRecord
			tsRaw      string
			durationMS int64
		)
		if err := rows.Scan(&rec.BuildID, &rec.Entry, &tsRaw, &durationMS, &rec.Modules, &rec.CodeBytes,
			&rec.CSSBytes, &rec.Warnings, &rec.Status, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse build timestamp %q: %w", tsRaw, err)
		}
		rec.Timestamp = ts.UTC()
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build rows: %w", err)
	}
	return out, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// IsCorruptError reports errors that mean the file is not a usable database;
// callers delete it and start cold.
func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
