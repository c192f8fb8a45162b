package persist

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const entrySuffix = ".inv"

// FileStore keeps one file per key under <root>/<version>/.
type FileStore struct {
	dir   string
	locks *lockTable
}

// NewFileStore creates the version directory under root if needed.
func NewFileStore(root string) (*FileStore, error) {
	dir := filepath.Join(root, Version())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating cache dir")
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "checking cache dir")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("cache dir %s is not a directory", dir)
	}
	return &FileStore{dir: dir, locks: newLockTable()}, nil
}

// Dir returns the version directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", errors.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(s.dir, key+entrySuffix), nil
}

func (s *FileStore) Read(key string, fn func(io.Reader) error) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	mu := s.locks.get(key)
	mu.RLock()
	defer mu.RUnlock()

	f, err := os.OpenFile(p, os.O_RDONLY|noFollow, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.Wrap(err, "opening cache entry")
	}
	defer f.Close()
	if err := lockFile(f, false); err != nil {
		return errors.Wrap(err, "locking cache entry")
	}
	defer unlockFile(f)
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "checking cache entry")
	}
	// An empty entry was never completely written.
	if info.Size() == 0 {
		return ErrNotFound
	}
	return fn(f)
}

// Write replaces the entry atomically: data goes to a temporary file in the
// same directory, which is then renamed over the entry. Readers see either
// the old entry or the new one, never an empty or partial file.
func (s *FileStore) Write(key string, data []byte) (err error) {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	mu := s.locks.get(key)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return errors.Wrap(err, "creating cache entry")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if err = lockFile(f, true); err != nil {
		f.Close()
		return errors.Wrap(err, "locking cache entry")
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "writing cache entry")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing cache entry")
	}
	if err = os.Rename(tmp, p); err != nil {
		return errors.Wrap(err, "installing cache entry")
	}
	return nil
}

type entryInfo struct {
	name    string
	modTime int64
}

func (s *FileStore) entries() ([]entryInfo, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing cache dir")
	}
	var out []entryInfo
	for _, de := range des {
		if !de.Type().IsRegular() || !strings.HasSuffix(de.Name(), entrySuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, entryInfo{name: de.Name(), modTime: info.ModTime().UnixNano()})
	}
	return out, nil
}

func (s *FileStore) Prune(maxEntries int) (int, error) {
	entries, err := s.entries()
	if err != nil || len(entries) <= maxEntries {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime != entries[j].modTime {
			return entries[i].modTime > entries[j].modTime
		}
		return entries[i].name < entries[j].name
	})
	removed := 0
	for _, e := range entries[maxEntries:] {
		key := strings.TrimSuffix(e.name, entrySuffix)
		mu := s.locks.get(key)
		mu.Lock()
		err := os.Remove(filepath.Join(s.dir, e.name))
		mu.Unlock()
		if err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) Clean() error {
	return errors.Wrap(os.RemoveAll(s.dir), "removing cache dir")
}

func (s *FileStore) Close() error { return nil }
