package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/turtacn/invoicer/pkg/errors"
)

const recordExt = ".json"

// FileStore keeps one JSON record per key in a directory and serializes
// read-modify-write with an exclusive advisory lock on the record file.
type FileStore struct {
	dir   string
	grace time.Duration
	now   func() time.Time
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileClock overrides the time source.
func WithFileClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) { s.now = now }
}

// WithPruneGrace sets how long after its window ended a record survives Prune.
func WithPruneGrace(grace time.Duration) FileStoreOption {
	return func(s *FileStore) { s.grace = grace }
}

// NewFileStore creates a store rooted at dir. The directory is created on first use.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{dir: dir, grace: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) recordPath(key string) string {
	return filepath.Join(s.dir, key+recordExt)
}

// Hit implements Store.
func (s *FileStore) Hit(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return Result{}, errors.ErrStorageUnavailable.WithCause(err)
	}

	p := s.recordPath(key)
	lock := flock.New(p)
	if err := lock.Lock(); err != nil {
		return Result{}, errors.ErrStorageUnavailable.WithCause(fmt.Errorf("lock %s: %w", p, err))
	}
	defer lock.Unlock()

	now := s.now().Unix()
	rec := advance(readRecord(p), now, window)

	if err := writeRecord(p, rec); err != nil {
		return Result{}, errors.ErrStorageUnavailable.WithCause(err)
	}
	return evaluate(rec, now, max), nil
}

// Peek returns the stored record for key without counting a hit. A missing
// record is never created.
func (s *FileStore) Peek(key string) (Record, error) {
	p := s.recordPath(key)
	lock := flock.New(p, flock.SetFlag(os.O_RDONLY))
	if err := lock.RLock(); err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, errors.ErrStorageUnavailable.WithCause(err)
	}
	defer lock.Unlock()
	return readRecord(p), nil
}

// Prune removes records whose window ended more than the grace period ago.
func (s *FileStore) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.ErrStorageUnavailable.WithCause(err)
	}

	cutoff := s.now().Add(-s.grace).Unix()
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}

		ok, err := s.pruneOne(filepath.Join(s.dir, entry.Name()), cutoff)
		if err != nil {
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) pruneOne(p string, cutoff int64) (bool, error) {
	lock := flock.New(p, flock.SetFlag(os.O_RDONLY))
	locked, err := lock.TryLock()
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil || !locked {
		return false, err
	}
	defer lock.Unlock()

	if readRecord(p).Reset > cutoff {
		return false, nil
	}
	return true, os.Remove(p)
}

// readRecord loads a record, treating absent or corrupt content as a fresh record.
func readRecord(p string) Record {
	var rec Record
	data, err := os.ReadFile(p)
	if err != nil || len(data) == 0 {
		return Record{}
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}
	}
	return rec
}

// writeRecord rewrites the record in place so the locked inode stays the same.
func writeRecord(p string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}
