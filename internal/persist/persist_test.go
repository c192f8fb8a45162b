package persist

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/funvibe/optijit/internal/typesystem"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ss, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })
	return map[string]BlobStore{"file": fs, "sqlite": ss}
}

func sample() typesystem.InvalidationMap {
	return typesystem.InvalidationMap{1: typesystem.Number, 7: typesystem.Object, 300: typesystem.Int}
}

func TestKey(t *testing.T) {
	src := []byte("function f(a, b) { return a + b; }")
	k := NewKey(src, 3, []typesystem.Type{typesystem.Int, typesystem.Object})
	assert.Len(t, k.Source, 32)
	assert.Equal(t, k.Source+"-3-IL", k.String())
	assert.Equal(t, k.Source+"-3", NewKey(src, 3, nil).String())
	assert.NotEqual(t, k.Source, NewKey([]byte("other"), 3, nil).Source)
}

func TestRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(store, zerolog.Nop(), time.Minute)
			key := NewKey([]byte("src"), 1, []typesystem.Type{typesystem.Number})
			c.Store(key, sample())

			got, ok := c.Load(key)
			require.True(t, ok)
			assert.Equal(t, sample(), got)

			// Overwrite with a smaller map.
			c.Store(key, typesystem.InvalidationMap{2: typesystem.Boolean})
			got, ok = c.Load(key)
			require.True(t, ok)
			assert.Equal(t, typesystem.InvalidationMap{2: typesystem.Boolean}, got)
		})
	}
}

func TestUnknownKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			c := New(store, zerolog.New(&buf), time.Minute)
			m, ok := c.Load(NewKey([]byte("nothing"), 9, nil))
			assert.False(t, ok)
			assert.Nil(t, m)
			assert.Empty(t, buf.String())
		})
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	c.Store(NewKey(nil, 1, nil), sample())
	_, ok := c.Load(NewKey(nil, 1, nil))
	assert.False(t, ok)
	n, err := c.Prune(0)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestCorruptEntriesAreReportedOncePerWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			c := New(store, zerolog.New(&buf), time.Hour)
			for i := 0; i < 5; i++ {
				key := NewKey([]byte("src"), i, nil)
				require.NoError(t, store.Write(key.String(), []byte{0xff, 0xff, 0xff}))
				_, ok := c.Load(key)
				assert.False(t, ok)
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], `"class":"corrupt"`)
		})
	}
}

func TestReporterClassesAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(zerolog.New(&buf), time.Hour)
	key := NewKey(nil, 1, nil)
	for i := 0; i < 3; i++ {
		r.Report(ClassRead, key, fmt.Errorf("read %d", i))
		r.Report(ClassWrite, key, fmt.Errorf("write %d", i))
	}
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "read 0")
	assert.Contains(t, out, "write 0")
}

func TestDecodeRejects(t *testing.T) {
	entry := func(pp, typ uint64) []byte {
		var e []byte
		e = protowire.AppendTag(e, fieldPoint, protowire.VarintType)
		e = protowire.AppendVarint(e, pp)
		e = protowire.AppendTag(e, fieldType, protowire.VarintType)
		e = protowire.AppendVarint(e, typ)
		return e
	}
	doc := func(format uint64, entries ...[]byte) []byte {
		b := protowire.AppendTag(nil, fieldFormat, protowire.VarintType)
		b = protowire.AppendVarint(b, format)
		for _, e := range entries {
			b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
			b = protowire.AppendBytes(b, e)
		}
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", Encode(sample())[:5]},
		{"no format", protowire.AppendBytes(protowire.AppendTag(nil, fieldEntries, protowire.BytesType), entry(1, 2))},
		{"other format", doc(99, entry(1, 2))},
		{"zero point", doc(1, entry(0, 2))},
		{"unknown type", doc(1, entry(1, 0))},
		{"type out of range", doc(1, entry(1, 9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.True(t, isDecodeError(err))
		})
	}

	// Unknown fields are skipped.
	data := protowire.AppendTag(doc(1, entry(4, 3)), 15, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))
	m, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, typesystem.InvalidationMap{4: typesystem.Number}, m)
}

func TestEncodeIsDeterministic(t *testing.T) {
	assert.Equal(t, Encode(sample()), Encode(sample().Clone()))
}

func TestPrune(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 6; i++ {
				require.NoError(t, store.Write(fmt.Sprintf("k%d", i), Encode(sample())))
			}
			n, err := store.Prune(4)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = store.Prune(4)
			require.NoError(t, err)
			assert.Zero(t, n)

			require.NoError(t, store.Clean())
			assert.ErrorIs(t, store.Read("k5", func(r io.Reader) error { return nil }), ErrNotFound)
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(store, zerolog.Nop(), time.Minute)
			key := NewKey([]byte("shared"), 1, nil)
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < 20; j++ {
						if (i+j)%2 == 0 {
							c.Store(key, sample())
						} else if m, ok := c.Load(key); ok {
							assert.Equal(t, sample(), m)
						}
					}
				}(i)
			}
			wg.Wait()
		})
	}
}

func TestFileStoreRefusesSymlinks(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("no O_NOFOLLOW")
	}
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	target := filepath.Join(t.TempDir(), "target")
	require.NoError(t, os.WriteFile(target, Encode(sample()), 0o600))
	require.NoError(t, os.Symlink(target, filepath.Join(fs.Dir(), "evil-0"+entrySuffix)))

	c := New(fs, zerolog.Nop(), time.Minute)
	err = fs.Read("evil-0", func(io.Reader) error { return nil })
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, ok := c.Load(Key{Source: "evil"})
	assert.False(t, ok)
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, fs.Write("../escape", []byte{1}))
	assert.Error(t, fs.Write(".hidden", []byte{1}))
}

func TestVersionIsPathSafe(t *testing.T) {
	v := Version()
	assert.True(t, strings.HasPrefix(v, "v1-"), v)
	assert.NotContains(t, v, string(filepath.Separator))
}

func TestFileStoreEmptyEntryIsNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	key := NewKey([]byte("src"), 1, nil)
	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), key.String()+entrySuffix), nil, 0o600))

	assert.ErrorIs(t, fs.Read(key.String(), func(io.Reader) error { return nil }), ErrNotFound)
	var buf bytes.Buffer
	_, ok := New(fs, zerolog.New(&buf), time.Hour).Load(key)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestFileStoreWriteReplacesWholeEntry(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Write("k", bytes.Repeat([]byte{1}, 64)))
	require.NoError(t, fs.Write("k", []byte{2, 3}))

	var got []byte
	require.NoError(t, fs.Read("k", func(r io.Reader) error {
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, []byte{2, 3}, got)

	des, err := os.ReadDir(fs.Dir())
	require.NoError(t, err)
	require.Len(t, des, 1)
	assert.Equal(t, "k"+entrySuffix, des[0].Name())
}
