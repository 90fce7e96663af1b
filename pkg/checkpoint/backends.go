package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/storage"
)

// Backend defines the interface for checkpoint storage backends.
type Backend interface {
	// Save persists a checkpoint to the backend.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by ID. A missing checkpoint is reported
	// with an error satisfying os.IsNotExist.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// List returns all checkpoints whose ID starts with prefix.
	List(ctx context.Context, prefix string) ([]*Checkpoint, error)

	// Name returns the backend name for logging.
	Name() string
}

// FileBackend keeps one JSON file per checkpoint in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the checkpoint directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "create checkpoint directory").
			WithContext("dir", dir)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+".checkpoint")
}

// Save writes to a temp file first, then renames it (atomic).
func (b *FileBackend) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "marshal checkpoint")
	}
	p := b.path(cp.ID)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "write checkpoint").WithContext("id", cp.ID)
	}
	if err := os.Rename(tmp, p); err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "rename checkpoint").WithContext("id", cp.ID)
	}
	return nil
}

// Load reads a checkpoint file.
func (b *FileBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "decode checkpoint").WithContext("id", id)
	}
	return &cp, nil
}

// Delete removes a checkpoint file.
func (b *FileBackend) Delete(ctx context.Context, id string) error {
	if err := os.Remove(b.path(id)); err != nil && !os.IsNotExist(err) {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "remove checkpoint").WithContext("id", id)
	}
	return nil
}

// List skips unreadable files.
func (b *FileBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "list checkpoints")
	}
	var out []*Checkpoint
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".checkpoint" || !strings.HasPrefix(name, prefix) {
			continue
		}
		cp, err := b.Load(ctx, strings.TrimSuffix(name, ".checkpoint"))
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// Name returns "file".
func (b *FileBackend) Name() string { return "file" }

// StoreBackend keeps checkpoints next to the artifacts in a storage.Store,
// so an S3-backed run resumes from the bucket alone.
type StoreBackend struct {
	store  storage.Store
	prefix string
}

// NewStoreBackend stores checkpoints under prefix in store.
func NewStoreBackend(store storage.Store, prefix string) *StoreBackend {
	if prefix == "" {
		prefix = "checkpoints/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &StoreBackend{store: store, prefix: prefix}
}

func (b *StoreBackend) key(id string) string {
	return path.Join(b.prefix, id+".json")
}

// Save implements Backend.
func (b *StoreBackend) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "marshal checkpoint")
	}
	return storage.Put(ctx, b.store, b.key(cp.ID), data)
}

// Load implements Backend.
func (b *StoreBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := storage.Get(ctx, b.store, b.key(id))
	if err != nil {
		if serrors.IsCode(err, serrors.CodeFileNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "decode checkpoint").WithContext("id", id)
	}
	return &cp, nil
}

// Delete implements Backend.
func (b *StoreBackend) Delete(ctx context.Context, id string) error {
	return b.store.Delete(ctx, b.key(id))
}

// List implements Backend.
func (b *StoreBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	keys, err := b.store.List(ctx, b.prefix+prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	var out []*Checkpoint
	for _, k := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(k, b.prefix), ".json")
		cp, err := b.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// Name returns "store".
func (b *StoreBackend) Name() string { return "store" }
