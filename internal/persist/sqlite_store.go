package persist

import (
	"bytes"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite" // SQLite
)

// DatabaseName is the file SQLiteStore keeps under its root.
const DatabaseName = "invalidations.db"

const schema = `CREATE TABLE IF NOT EXISTS entries (
    version TEXT NOT NULL,
    key TEXT NOT NULL,
    data BLOB NOT NULL,
    updated INTEGER NOT NULL,
PRIMARY KEY (version, key));`

// SQLiteStore keeps every entry in a single database shared by all builds.
// Rows carry the build version and other versions are never read.
type SQLiteStore struct {
	db      *sql.DB
	version string
	locks   *lockTable
}

// NewSQLiteStore opens or creates the database under root.
func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating cache dir")
	}
	dsn := "file:" + filepath.Join(root, DatabaseName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating cache schema")
	}
	return &SQLiteStore{db: db, version: Version(), locks: newLockTable()}, nil
}

func (s *SQLiteStore) Read(key string, fn func(io.Reader) error) error {
	mu := s.locks.get(key)
	mu.RLock()
	defer mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM entries WHERE version = ?1 AND key = ?2`, s.version, key).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "reading cache entry")
	}
	return fn(bytes.NewReader(data))
}

func (s *SQLiteStore) Write(key string, data []byte) error {
	mu := s.locks.get(key)
	mu.Lock()
	defer mu.Unlock()

	query :=
		`INSERT INTO entries(version, key, data, updated)
	VALUES (?1, ?2, ?3, ?4)
	ON CONFLICT(version, key) DO UPDATE SET data = excluded.data, updated = excluded.updated`
	_, err := s.db.Exec(query, s.version, key, data, time.Now().UnixNano())
	return errors.Wrap(err, "writing cache entry")
}

func (s *SQLiteStore) Prune(maxEntries int) (int, error) {
	query :=
		`DELETE FROM entries WHERE version = ?1 AND key NOT IN (
	SELECT key FROM entries WHERE version = ?1 ORDER BY updated DESC, key LIMIT ?2)`
	res, err := s.db.Exec(query, s.version, maxEntries)
	if err != nil {
		return 0, errors.Wrap(err, "pruning cache")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "pruning cache")
}

func (s *SQLiteStore) Clean() error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE version = ?1`, s.version)
	return errors.Wrap(err, "cleaning cache")
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
