package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-sam-session/lib/util"
)

func newStore(t *testing.T) (*FileStore, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return NewFileStore(logger, 0), hook
}

func TestFileStore_LoadMissing(t *testing.T) {
	s, _ := newStore(t)
	kp, err := s.Load(filepath.Join(t.TempDir(), "alice.keys"))
	require.NoError(t, err)
	assert.Empty(t, kp.PrivateKey)
	assert.True(t, kp.NeedsPersist)
}

func TestFileStore_LoadEmptyPath(t *testing.T) {
	s, _ := newStore(t)
	kp, err := s.Load("")
	require.NoError(t, err)
	assert.Equal(t, Keypair{}, kp)
}

func TestFileStore_LoadExisting(t *testing.T) {
	s, _ := newStore(t)
	path := filepath.Join(t.TempDir(), "bob.keys")
	require.NoError(t, os.WriteFile(path, []byte("STORED~KEY-\n"), 0o600))

	kp, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "STORED~KEY-", kp.PrivateKey)
	assert.False(t, kp.NeedsPersist)
}

func TestFileStore_LoadIsVerbatim(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no newline", "KEY~A", "KEY~A"},
		{"one newline", "KEY~A\n", "KEY~A"},
		{"crlf", "KEY~A\r\n", "KEY~A"},
		{"two newlines", "KEY~A\n\n", "KEY~A\n"},
		{"surrounding blanks", " KEY~A \t", " KEY~A \t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			path := filepath.Join(t.TempDir(), "k.keys")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			kp, err := s.Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kp.PrivateKey)
		})
	}
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	s, _ := newStore(t)
	path := filepath.Join(t.TempDir(), "empty.keys")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	kp, err := s.Load(path)
	require.NoError(t, err)
	assert.Empty(t, kp.PrivateKey)
	assert.True(t, kp.NeedsPersist)
}

func TestFileStore_LoadUnreadable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	path := filepath.Join(t.TempDir(), "locked.keys")
	require.NoError(t, os.WriteFile(path, []byte("KEY"), 0o000))

	t.Run("lenient falls back without persisting", func(t *testing.T) {
		s, hook := newStore(t)
		kp, err := s.Load(path)
		require.NoError(t, err)
		assert.Empty(t, kp.PrivateKey)
		assert.False(t, kp.NeedsPersist)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})

	t.Run("strict fails", func(t *testing.T) {
		s, _ := newStore(t)
		s.Strict = true
		_, err := s.Load(path)
		assert.ErrorIs(t, err, util.ErrValidation)
	})
}

func TestFileStore_LoadDirectory(t *testing.T) {
	// Reading a directory fails on every platform without needing chmod.
	s, _ := newStore(t)
	kp, err := s.Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, kp.NeedsPersist)
}

func TestFileStore_SaveAndReload(t *testing.T) {
	s, _ := newStore(t)
	path := filepath.Join(t.TempDir(), "carol.keys")

	require.NoError(t, s.Save(path, "ROUTER~GENERATED"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ROUTER~GENERATED", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	fresh, _ := newStore(t)
	kp, err := fresh.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ROUTER~GENERATED", kp.PrivateKey)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestFileStore_SaveNeverOverwrites(t *testing.T) {
	s, _ := newStore(t)
	path := filepath.Join(t.TempDir(), "dave.keys")
	require.NoError(t, os.WriteFile(path, []byte("ORIGINAL"), 0o600))

	err := s.Save(path, "REPLACEMENT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyExists))

	var w *util.PersistenceWarning
	require.ErrorAs(t, err, &w)
	assert.Equal(t, "save", w.Operation)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ORIGINAL", string(data))
}

func TestFileStore_SaveMissingDirectory(t *testing.T) {
	s, _ := newStore(t)
	err := s.Save(filepath.Join(t.TempDir(), "nope", "erin.keys"), "KEY")
	var w *util.PersistenceWarning
	assert.ErrorAs(t, err, &w)
}

func TestFileStore_CachesLoadedKeys(t *testing.T) {
	s, _ := newStore(t)
	path := filepath.Join(t.TempDir(), "frank.keys")
	require.NoError(t, os.WriteFile(path, []byte("FIRST"), 0o600))

	kp, err := s.Load(path)
	require.NoError(t, err)
	require.Equal(t, "FIRST", kp.PrivateKey)

	// The persisted key is immutable for the life of the store.
	require.NoError(t, os.WriteFile(path, []byte("SECOND"), 0o600))
	kp, err = s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FIRST", kp.PrivateKey)

	s.Forget(path)
	kp, err = s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SECOND", kp.PrivateKey)
}
