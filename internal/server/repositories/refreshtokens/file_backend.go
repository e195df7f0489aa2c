package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lexivault/lexivault/internal/filex"
)

// StoreFileName is the aggregate file inside <data dir>/auth.
const StoreFileName = "refresh_store.json"

// FileBackend keeps the aggregate in a single JSON file. One mutex per
// backend serializes every read and read-modify-write cycle; writes go
// through a temp file and an atomic rename.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates <dataDir>/auth if needed and stores the aggregate
// there.
func NewFileBackend(dataDir string) (*FileBackend, error) {
	dir, err := filex.EnsureDir(filepath.Join(dataDir, "auth"))
	if err != nil {
		return nil, fmt.Errorf("token store dir: %w", err)
	}
	return &FileBackend{path: filepath.Join(dir, StoreFileName)}, nil
}

func (b *FileBackend) Name() string { return "file" }

// Path is the location of the aggregate file.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return filex.WriteFileAtomic(b.path, data, 0o600)
}

func (b *FileBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := b.read()
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	return filex.WriteFileAtomic(b.path, next, 0o600)
}

func (b *FileBackend) Preserve(ctx context.Context, data []byte) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", b.path, time.Now().UnixNano())
	if err := filex.WriteFileAtomic(dst, data, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

func (b *FileBackend) Ping(ctx context.Context) error {
	fi, err := os.Stat(filepath.Dir(b.path))
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(b.path))
	}
	return nil
}

func (b *FileBackend) read() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}
