package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/afs"
)

// FileBackend persists all keys as one JSON snapshot at an afs URL. Every
// write lands in a temporary object first and is then moved over the
// snapshot, so a crash mid-write leaves the previous snapshot intact.
type FileBackend struct {
	mu  sync.RWMutex
	URL string
	fs  afs.Service
}

type FileOption func(*FileBackend)

// WithService sets the afs service used for I/O
func WithService(fs afs.Service) FileOption {
	return func(f *FileBackend) {
		f.fs = fs
	}
}

type fileSnapshot struct {
	Values map[string]string `json:"values"`
}

func (f *FileBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	ret := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := snap.Values[key]; ok {
			ret[key] = v
		}
	}
	return ret, nil
}

func (f *FileBackend) Set(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupted) {
			return err
		}
		// a corrupted snapshot is replaced rather than merged into
		snap = &fileSnapshot{Values: map[string]string{}}
	}
	for k, v := range values {
		snap.Values[k] = v
	}
	return f.save(ctx, snap)
}

func (f *FileBackend) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load(ctx)
	if err != nil {
		return f.remove(ctx)
	}
	for _, key := range keys {
		delete(snap.Values, key)
	}
	if len(snap.Values) == 0 {
		return f.remove(ctx)
	}
	return f.save(ctx, snap)
}

// ---- persistence ----

func (f *FileBackend) load(ctx context.Context) (*fileSnapshot, error) {
	ok, err := f.fs.Exists(ctx, f.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %v: %w", f.URL, err)
	}
	if !ok {
		return &fileSnapshot{Values: map[string]string{}}, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, f.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download %v: %w", f.URL, err)
	}
	snap := &fileSnapshot{}
	if err = json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if snap.Values == nil {
		snap.Values = map[string]string{}
	}
	return snap, nil
}

func (f *FileBackend) save(ctx context.Context, snap *fileSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.URL + ".tmp"
	if err = f.fs.Upload(ctx, tmp, 0o600, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload %v: %w", tmp, err)
	}
	if err = f.fs.Move(ctx, tmp, f.URL); err != nil {
		return fmt.Errorf("failed to move %v: %w", tmp, err)
	}
	return nil
}

func (f *FileBackend) remove(ctx context.Context) error {
	ok, err := f.fs.Exists(ctx, f.URL)
	if err != nil {
		return fmt.Errorf("failed to check %v: %w", f.URL, err)
	}
	if !ok {
		return nil
	}
	return f.fs.Delete(ctx, f.URL)
}

// NewFileBackend creates a Backend persisted at URL.
func NewFileBackend(URL string, options ...FileOption) *FileBackend {
	ret := &FileBackend{URL: URL, fs: afs.New()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// NewFileStore is a shortcut for New(NewFileBackend(URL), options...).
func NewFileStore(URL string, options ...Option) *Store {
	return New(NewFileBackend(URL), options...)
}
