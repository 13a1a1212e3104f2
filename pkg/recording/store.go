package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ext is the file extension stores append to recording IDs.
const Ext = ".c3dr"

// Store errors.
var (
	// ErrNotFound is returned when a recording ID does not exist in the
	// store.
	ErrNotFound = errors.New("recording: not found")

	// ErrBadID is returned for IDs that could escape the store's keyspace.
	ErrBadID = errors.New("recording: invalid recording id")
)

// NewID returns a fresh recording identifier.
func NewID() string {
	return uuid.NewString()
}

// Info describes one stored recording.
type Info struct {
	ID      string
	Size    int64
	ModTime time.Time
}

// Store is a keyed blob home for recordings. Create and Open hand back
// streams so containers never have to fit in memory; List and Remove manage
// the archive.
type Store interface {
	Create(ctx context.Context, id string) (io.WriteCloser, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	List(ctx context.Context) ([]Info, error)
	Remove(ctx context.Context, id string) error
}

// FSStore keeps recordings as files under one directory.
type FSStore struct {
	dir string
}

// NewFSStore returns a store rooted at dir. The directory is created on
// first Create.
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

func checkID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrBadID, id)
	}
	return nil
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+Ext)
}

// Create opens a new recording file for writing, truncating any previous
// recording with the same ID.
func (s *FSStore) Create(_ context.Context, id string) (io.WriteCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: creating store dir: %w", err)
	}
	f, err := os.Create(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("recording: creating %s: %w", id, err)
	}
	return f, nil
}

// Open opens a stored recording for reading.
func (s *FSStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("recording: opening %s: %w", id, err)
	}
	return f, nil
}

// List returns the stored recordings sorted by ID.
func (s *FSStore) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("recording: listing store: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			ID:      strings.TrimSuffix(e.Name(), Ext),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Remove deletes a stored recording.
func (s *FSStore) Remove(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("recording: removing %s: %w", id, err)
	}
	return nil
}
