// Package keystore loads and persists session private keys.
//
// A key file holds the router's key blob verbatim; it is never parsed.
// Once a file exists it is never overwritten.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/go-i2p/go-sam-session/lib/util"
)

// DefaultCacheSize bounds how many loaded keys FileStore keeps in memory.
const DefaultCacheSize = 128

// ErrKeyExists is returned by Save when the target file already exists.
var ErrKeyExists = errors.New("key file already exists")

// Keypair is the outcome of loading a key file.
type Keypair struct {
	// PrivateKey is the stored blob, empty if none could be loaded.
	PrivateKey string

	// NeedsPersist is set when no key file existed, so the router-generated
	// key must be written once the handshake completes.
	NeedsPersist bool
}

// Store loads and saves key blobs by path.
type Store interface {
	// Load reads the key at path. Failures are reported through the
	// returned Keypair and logged, not returned, unless the store is strict.
	Load(path string) (Keypair, error)

	// Save writes key to path. It refuses to replace an existing file.
	Save(path, key string) error
}

// FileStore is a Store backed by the local filesystem.
//
// Loaded and saved keys are cached by path. A key file replaced behind the
// store's back is not noticed until Forget is called for its path.
type FileStore struct {
	// Strict makes Load fail when a key file exists but cannot be read,
	// instead of falling back to a transient key.
	Strict bool

	log   logrus.FieldLogger
	cache *lru.Cache[string, string]
}

// NewFileStore creates a FileStore. A nil logger uses the logrus
// standard logger; a non-positive cacheSize uses DefaultCacheSize.
func NewFileStore(log logrus.FieldLogger, cacheSize int) *FileStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &FileStore{log: log, cache: cache}
}

// Load reads the key at path.
//
//   - missing or empty file: no key, NeedsPersist.
//   - readable file: its contents verbatim, never persisted again. A
//     single trailing line break, as editors add, is not part of the key.
//   - existing but unreadable file: no key and no persistence, so the
//     file is not replaced; in Strict mode a ValidationError instead.
func (s *FileStore) Load(path string) (Keypair, error) {
	if path == "" {
		return Keypair{}, nil
	}
	path = filepath.Clean(path)

	if key, ok := s.cache.Get(path); ok {
		return Keypair{PrivateKey: key}, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.WithField("path", path).Info("No private key found, router will generate one")
		return Keypair{NeedsPersist: true}, nil
	case err != nil:
		if s.Strict {
			return Keypair{}, util.NewValidationError("key file", "exists but cannot be read", err)
		}
		s.warn(util.NewPersistenceWarning(path, "load", err), "Could not load private key, using a transient key without replacing the file")
		return Keypair{}, nil
	}

	key := trimNewline(string(data))
	if key == "" {
		return Keypair{NeedsPersist: true}, nil
	}

	s.cache.Add(path, key)
	return Keypair{PrivateKey: key}, nil
}

// Save writes key to path with owner-only permissions. The write goes to a
// temporary file that is then linked into place, so a concurrent or earlier
// writer is never clobbered and readers never see a partial key.
func (s *FileStore) Save(path, key string) error {
	if path == "" {
		return nil
	}
	if key == "" {
		return fmt.Errorf("save %s: empty key", path)
	}
	path = filepath.Clean(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return util.NewPersistenceWarning(path, "save", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return util.NewPersistenceWarning(path, "save", err)
	}
	if _, err := tmp.WriteString(key); err != nil {
		tmp.Close()
		return util.NewPersistenceWarning(path, "save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return util.NewPersistenceWarning(path, "save", err)
	}
	if err := tmp.Close(); err != nil {
		return util.NewPersistenceWarning(path, "save", err)
	}

	// os.Link fails if path exists, unlike os.Rename.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return util.NewPersistenceWarning(path, "save", ErrKeyExists)
		}
		return util.NewPersistenceWarning(path, "save", err)
	}

	s.cache.Add(path, key)
	s.log.WithField("path", path).Info("Saved private key")
	return nil
}

// Forget drops path from the cache, e.g. after the file was rotated externally.
func (s *FileStore) Forget(path string) {
	s.cache.Remove(filepath.Clean(path))
}

// trimNewline removes one trailing "\n" or "\r\n".
func trimNewline(key string) string {
	key = strings.TrimSuffix(key, "\n")
	return strings.TrimSuffix(key, "\r")
}

func (s *FileStore) warn(w *util.PersistenceWarning, msg string) {
	s.log.WithFields(logrus.Fields{
		"path":      w.Path,
		"operation": w.Operation,
	}).WithError(w.Err).Warn(msg)
}

// Verify Store interface compliance
var _ Store = (*FileStore)(nil)
