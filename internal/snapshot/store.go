package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrNotFound is returned for unknown snapshot ids.
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidID is returned for ids that are not UUIDs.
	ErrInvalidID = errors.New("invalid snapshot id")
)

// Kinds of emission a snapshot belongs to.
const (
	KindInit   = "init"
	KindChange = "change"
)

// Meta describes a stored screenshot.
type Meta struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	Kind      string    `json:"kind"`
	Selector  string    `json:"selector,omitempty"`
	FullPage  bool      `json:"full_page"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps screenshots named by local capture time, with a JSON
// sidecar per image under meta/.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures its directories exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "meta"), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the image directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, "meta", id+".json")
}

// Save writes img as positions_YYYYMMDD_HHMMSS.png (local time of at) and
// its sidecar. A numeric suffix keeps two captures in the same second apart.
func (s *Store) Save(kind, selector string, fullPage bool, img []byte, at time.Time) (Meta, error) {
	if len(img) == 0 {
		return Meta{}, errors.New("snapshot store: empty image")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := "positions_" + at.Local().Format("20060102_150405")
	name := base + ".png"
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s_%d.png", base, i)
	}

	meta := Meta{
		ID:        uuid.NewString(),
		File:      name,
		Kind:      kind,
		Selector:  selector,
		FullPage:  fullPage,
		SizeBytes: len(img),
		CreatedAt: at.UTC(),
	}

	imgPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(imgPath, img, 0o644); err != nil {
		return Meta{}, fmt.Errorf("snapshot store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		s.removeImage(imgPath)
		return Meta{}, fmt.Errorf("snapshot store: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o644); err != nil {
		s.removeImage(imgPath)
		return Meta{}, fmt.Errorf("snapshot store: write meta: %w", err)
	}

	slog.Debug("snapshot saved", "id", meta.ID, "file", name, "kind", kind, "full_page", fullPage)
	return meta, nil
}

func (s *Store) removeImage(path string) {
	if err := os.Remove(path); err != nil {
		slog.Debug("snapshot image cleanup failed", "path", path, "error", err)
	}
}

// Get reads snapshot metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := s.validateID(id); err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Meta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all snapshots, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "meta", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].File > metas[j].File
		}
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage returns the PNG bytes of a snapshot.
func (s *Store) ReadImage(id string) ([]byte, Meta, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, meta.File))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, fmt.Errorf("%w: image %s", ErrNotFound, meta.File)
		}
		return nil, Meta{}, fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta, nil
}
