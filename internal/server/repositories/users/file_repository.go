package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/filex"
	"github.com/lexivault/lexivault/internal/server/models"
)

// UsersFileName is the account file inside <data dir>/users.
const UsersFileName = "users.json"

const usersSchemaVersion = 1

type usersDocument struct {
	SchemaVersion int            `json:"schemaVersion"`
	Users         []*models.User `json:"users"`
}

// FileRepository keeps every account in one JSON document. Reads and writes
// share a mutex; writes are atomic renames.
type FileRepository struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

var _ Repository = (*FileRepository)(nil)

func NewFileRepository(dataDir string) (*FileRepository, error) {
	dir, err := filex.EnsureDir(filepath.Join(dataDir, "users"))
	if err != nil {
		return nil, fmt.Errorf("users dir: %w", err)
	}
	return &FileRepository{path: filepath.Join(dir, UsersFileName), now: time.Now}, nil
}

func (r *FileRepository) Path() string { return r.path }

func (r *FileRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	for _, u := range doc.Users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *FileRepository) FindByID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	if i := indexByID(doc, userID); i >= 0 {
		return cloneUser(doc.Users[i]), nil
	}
	return nil, common.ErrorNotFound
}

func (r *FileRepository) Create(ctx context.Context, username, passwordHash string, roles []string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	for _, u := range doc.Users {
		if u.Username == username {
			return nil, common.ErrUserExists
		}
	}
	if len(roles) == 0 {
		roles = DefaultRoles
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        slices.Clone(roles),
		CreatedAt:    r.now().UTC(),
	}
	doc.Users = append(doc.Users, u)
	if err := r.write(doc); err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (r *FileRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	i := indexByID(doc, userID)
	if i < 0 {
		return common.ErrorNotFound
	}
	if doc.Users[i].Disabled == disabled {
		return nil
	}
	doc.Users[i].Disabled = disabled
	return r.write(doc)
}

func (r *FileRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	i := indexByID(doc, userID)
	if i < 0 {
		return common.ErrorNotFound
	}
	doc.Users = slices.Delete(doc.Users, i, i+1)
	return r.write(doc)
}

// read returns an empty document when the file does not exist yet. Unlike
// the token store, a corrupt account file is an error: guessing an empty
// user list would let anyone re-register existing names.
func (r *FileRepository) read() (*usersDocument, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &usersDocument{SchemaVersion: usersSchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	var doc usersDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = usersSchemaVersion
	}
	return &doc, nil
}

func (r *FileRepository) write(doc *usersDocument) error {
	if doc.Users == nil {
		doc.Users = []*models.User{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	return filex.WriteFileAtomic(r.path, data, 0o600)
}

func indexByID(doc *usersDocument, userID string) int {
	return slices.IndexFunc(doc.Users, func(u *models.User) bool { return u.ID == userID })
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}
