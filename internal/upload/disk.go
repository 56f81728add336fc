package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

const indexFileName = "uploads.json"

// Entry is one stored collage in the disk index.
type Entry struct {
	ID          string    `json:"id"`
	File        string    `json:"file"`
	DisplayName string    `json:"name"`
	Caption     string    `json:"message"`
	Timestamp   string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiskBridge stores each collage as <uuid>.jpg under a directory and keeps
// a JSON index of every upload.
type DiskBridge struct {
	dir string
	mu  sync.RWMutex
}

// NewDiskBridge creates dir if needed and returns a bridge writing into it.
func NewDiskBridge(dir string) (*DiskBridge, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create %s: %w", dir, err)
	}
	return &DiskBridge{dir: dir}, nil
}

func (d *DiskBridge) Upload(ctx context.Context, req Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load()
	if err != nil {
		return err
	}

	id := uuid.NewString()
	file := id + ".jpg"
	if err := os.WriteFile(filepath.Join(d.dir, file), req.Image, 0o644); err != nil {
		return fmt.Errorf("upload: write image: %w", err)
	}

	entries = append(entries, Entry{
		ID:          id,
		File:        file,
		DisplayName: req.DisplayName,
		Caption:     req.Caption,
		Timestamp:   req.Timestamp,
		CreatedAt:   time.Now(),
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(d.dir, indexFileName), data, 0o644); err != nil {
		return fmt.Errorf("upload: write index: %w", err)
	}

	debug.Verbose("Upload: stored %s", file)
	return nil
}

// Entries returns every stored upload, oldest first.
func (d *DiskBridge) Entries() ([]Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.load()
}

// load reads the index; a missing index is empty.
func (d *DiskBridge) load() ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, indexFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upload: read index: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("upload: parse index: %w", err)
	}
	return entries, nil
}
