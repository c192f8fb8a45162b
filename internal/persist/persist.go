// Package persist keeps invalidation maps across processes, so a function
// recompiled in a later run starts from the types that already failed.
package persist

import (
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/typesystem"
)

// ErrNotFound is returned by a BlobStore read of a key it does not hold.
var ErrNotFound = errors.New("persist: no entry")

// BlobStore is a byte-blob store safe for concurrent use by goroutines and
// by processes sharing its location. Reads hold a shared lock on the entry
// while fn runs, writes an exclusive one.
type BlobStore interface {
	Read(key string, fn func(io.Reader) error) error
	Write(key string, data []byte) error
	// Prune removes the least recently written entries beyond maxEntries
	// and reports how many were removed.
	Prune(maxEntries int) (int, error)
	// Clean removes every entry of the current version.
	Clean() error
	Close() error
}

// Key identifies the invalidation map of one specialization of a function.
type Key struct {
	// Source is a digest of the source the function was compiled from.
	Source   string
	Function int
	// Params is the parameter type signature, empty for generic compiles.
	Params string
}

// NewKey derives the key of function functionID compiled from source with
// the given parameter types.
func NewKey(source []byte, functionID int, params []typesystem.Type) Key {
	sum := blake2b.Sum256(source)
	return Key{
		Source:   hex.EncodeToString(sum[:])[:32],
		Function: functionID,
		Params:   typesystem.Signature(params),
	}
}

func (k Key) String() string {
	s := k.Source + "-" + strconv.Itoa(k.Function)
	if k.Params != "" {
		s += "-" + k.Params
	}
	return s
}

// Cache loads and stores invalidation maps through a BlobStore. Failures
// never reach the caller: a bad entry reads as no entry and a failed write
// is dropped. Both are logged, rate limited per error class.
//
// A nil *Cache is valid and holds nothing.
type Cache struct {
	store  BlobStore
	report *Reporter
}

// New returns a cache over store.
func New(store BlobStore, log zerolog.Logger, window time.Duration) *Cache {
	return &Cache{store: store, report: NewReporter(log, window)}
}

// Open returns the cache configured by opts, nil when persistence is off.
func Open(opts config.Persistence, log zerolog.Logger) (*Cache, error) {
	if !opts.Enabled {
		return nil, nil
	}
	var (
		store BlobStore
		err   error
	)
	switch opts.Backend {
	case config.BackendSQLite:
		store, err = NewSQLiteStore(opts.Dir)
	default:
		store, err = NewFileStore(opts.Dir)
	}
	if err != nil {
		return nil, err
	}
	return New(store, log, opts.ReportWindow), nil
}

// Load returns the stored map for key. ok is false when there is none or it
// could not be read.
func (c *Cache) Load(key Key) (m typesystem.InvalidationMap, ok bool) {
	if c == nil {
		return nil, false
	}
	err := c.store.Read(key.String(), func(r io.Reader) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		m, err = Decode(data)
		return err
	})
	switch {
	case err == nil:
		return m, true
	case errors.Is(err, ErrNotFound):
	case isDecodeError(err):
		c.report.Report(ClassCorrupt, key, err)
	default:
		c.report.Report(ClassRead, key, err)
	}
	return nil, false
}

// Store saves m under key. Empty maps are not stored.
func (c *Cache) Store(key Key, m typesystem.InvalidationMap) {
	if c == nil || len(m) == 0 {
		return
	}
	if err := c.store.Write(key.String(), Encode(m)); err != nil {
		c.report.Report(ClassWrite, key, err)
	}
}

// Prune trims the store to maxEntries.
func (c *Cache) Prune(maxEntries int) (int, error) {
	if c == nil {
		return 0, nil
	}
	return c.store.Prune(maxEntries)
}

// Clean drops every entry of the current version.
func (c *Cache) Clean() error {
	if c == nil {
		return nil
	}
	return c.store.Clean()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}
