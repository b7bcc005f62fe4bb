package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/types"
)

const documentVersion = 1

// document is the on-disk layout. Unknown fields in older or newer files are
// ignored on load; missing optional fields default to zero values.
type document struct {
	Version int                   `json:"version"`
	Lists   []*types.ShoppingList `json:"lists"`
}

type fileAdapter struct {
	path string
	log  *logger.Logger
}

// NewFileAdapter persists the collection as a single JSON document. Writes go
// to a temp file in the same directory followed by an atomic rename, so a
// crash mid-write never leaves a torn document behind.
func NewFileAdapter(path string, log *logger.Logger) Adapter {
	return &fileAdapter{
		path: path,
		log:  log.With("adapter", "FileAdapter", "path", path),
	}
}

func (f *fileAdapter) Load(ctx context.Context) ([]*types.ShoppingList, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.log.Info("No existing storage document, starting empty")
			return []*types.ShoppingList{}, nil
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Lists == nil {
		doc.Lists = []*types.ShoppingList{}
	}
	f.log.Info("Loaded storage document", "lists", len(doc.Lists), "version", doc.Version)
	return doc.Lists, nil
}

func (f *fileAdapter) Save(ctx context.Context, lists []*types.ShoppingList) error {
	doc := document{Version: documentVersion, Lists: lists}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	f.log.Debug("Saved storage document", "lists", len(lists), "bytes", len(b))
	return nil
}
