package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	idx  INTEGER PRIMARY KEY,
	body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteStore keeps one row per block. Save rewrites the tables inside one
// transaction; SQLite's journal makes it all-or-nothing across crashes.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sqliteErr("failed to connect to database", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, sqliteErr(fmt.Sprintf("failed to execute %q", p), err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, sqliteErr("failed to apply schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := map[string]string{}
	rows, err := s.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, sqliteErr("read meta", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, sqliteErr("scan meta", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("read meta", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&count); err != nil {
		return nil, sqliteErr("count blocks", err)
	}
	if len(meta) == 0 {
		if count > 0 {
			return nil, fmt.Errorf("%w: %d blocks without meta", ErrCorruptedStore, count)
		}
		return nil, nil
	}

	height, err := metaNumber(meta, "height")
	if err != nil {
		return nil, err
	}
	difficulty, err := metaNumber(meta, "difficulty")
	if err != nil {
		return nil, err
	}
	version, err := metaNumber(meta, "version")
	if err != nil {
		return nil, err
	}
	if count != height {
		return nil, fmt.Errorf("%w: %d block rows, height %d", ErrCorruptedStore, count, height)
	}

	rows, err = s.db.Query(`SELECT idx, body FROM blocks ORDER BY idx`)
	if err != nil {
		return nil, sqliteErr("read blocks", err)
	}
	defer rows.Close()
	raw := make([][]byte, 0, height)
	for rows.Next() {
		var idx int
		var body string
		if err := rows.Scan(&idx, &body); err != nil {
			return nil, sqliteErr("scan block", err)
		}
		if idx != len(raw) {
			return nil, fmt.Errorf("%w: block row %d where %d expected", ErrCorruptedStore, idx, len(raw))
		}
		raw = append(raw, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("read blocks", err)
	}
	return decodeDocument(assembleDocument(version, difficulty, raw))
}

func (s *SQLiteStore) Save(doc Document) (err error) {
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	bodies := make([]string, len(doc.Chain))
	for i := range doc.Chain {
		data, err := json.Marshal(&doc.Chain[i])
		if err != nil {
			return fmt.Errorf("encode block %d: %w", i, err)
		}
		bodies[i] = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM blocks WHERE idx >= ?`, len(bodies)); err != nil {
		return fmt.Errorf("trim blocks: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO blocks (idx, body) VALUES (?, ?)
		ON CONFLICT(idx) DO UPDATE SET body = excluded.body`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for i, body := range bodies {
		if _, err = stmt.Exec(i, body); err != nil {
			return fmt.Errorf("write block %d: %w", i, err)
		}
	}
	for k, v := range map[string]string{
		"height":     strconv.Itoa(len(bodies)),
		"difficulty": strconv.Itoa(doc.Difficulty),
		"version":    strconv.Itoa(doc.Version),
	} {
		if _, err = tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func metaNumber(meta map[string]string, key string) (int, error) {
	v, ok := meta[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing meta %s", ErrCorruptedStore, key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: bad meta %s %q", ErrCorruptedStore, key, v)
	}
	return n, nil
}

// sqliteErr maps SQLite's corruption codes onto ErrCorruptedStore.
func sqliteErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrCorrupt || se.Code == sqlite3.ErrNotADB) {
		return fmt.Errorf("%w: %s: %v", ErrCorruptedStore, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
