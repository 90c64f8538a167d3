// Package indexcache persists built vector indexes on disk, keyed by
// document content hash. Each entry is two files: the binary index and a
// JSON metadata sidecar carrying the chunks and the chunking config, so a
// cached document never needs re-chunking or re-embedding.
package indexcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/vector"
	"go.uber.org/zap"
)

const (
	indexSuffix    = ".index"
	metadataSuffix = "_metadata.json"
)

// Hash derives the cache key for a document. Alias for domain.DocumentHash;
// entries on disk are named by it.
func Hash(text string) string {
	return domain.DocumentHash(text)
}

// Metadata is the JSON sidecar stored next to each index.
type Metadata struct {
	DocumentHash   string                `json:"document_hash"`
	Filename       string                `json:"pdf_filename"`
	CreatedAt      time.Time             `json:"created_at"`
	NumChunks      int                   `json:"num_chunks"`
	Chunks         []string              `json:"chunks"`
	ChunkingConfig domain.ChunkingConfig `json:"chunking_config"`
	DocumentLength int                   `json:"document_length"`
	IndexDimension int                   `json:"index_dimension"`
	IndexTotal     int                   `json:"index_total"`
}

// Entry is one loaded cache record.
type Entry struct {
	Index  *vector.FlatIndex
	Chunks []string
	Meta   Metadata
}

// Cache reads and writes index entries under a single directory.
type Cache struct {
	dir    string
	logger *zap.Logger
}

// New creates a cache rooted at dir. The directory is created lazily on
// first write.
func New(dir string, logger *zap.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

// Save writes the index and its metadata sidecar, overwriting any previous
// entry for the same document text. Returns the document hash.
func (c *Cache) Save(
	index *vector.FlatIndex,
	chunks []string,
	documentText, filename string,
	cfg domain.ChunkingConfig,
) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	hash := Hash(documentText)
	meta := Metadata{
		DocumentHash:   hash,
		Filename:       filename,
		CreatedAt:      time.Now(),
		NumChunks:      len(chunks),
		Chunks:         chunks,
		ChunkingConfig: cfg,
		DocumentLength: len(documentText),
		IndexDimension: index.Dimension(),
		IndexTotal:     index.Len(),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeFileAtomic(c.indexPath(hash), index.Marshal()); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	if err := writeFileAtomic(c.metadataPath(hash), metaJSON); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	c.logger.Info("index saved",
		zap.String("hash", hash),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))
	return hash, nil
}

// Load reads the entry for hash. A missing or unreadable entry is a cache
// miss, never an error: callers fall back to rebuilding, and the cause is
// logged here.
func (c *Cache) Load(hash string) (*Entry, bool) {
	indexData, err := os.ReadFile(c.indexPath(hash))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("index unreadable", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}
	metaData, err := os.ReadFile(c.metadataPath(hash))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("metadata unreadable", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}

	idx, err := vector.Unmarshal(indexData)
	if err != nil {
		c.logger.Warn("index corrupt", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}
	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		c.logger.Warn("metadata corrupt", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}

	return &Entry{Index: idx, Chunks: meta.Chunks, Meta: meta}, true
}

// Exists reports whether a complete entry is on disk for this document text.
func (c *Cache) Exists(documentText string) (string, bool) {
	hash := Hash(documentText)
	if fileExists(c.indexPath(hash)) && fileExists(c.metadataPath(hash)) {
		return hash, true
	}
	return "", false
}

// List returns the metadata of every readable entry. Corrupt sidecars are
// skipped with a warning.
func (c *Cache) List() []Metadata {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache dir unreadable", zap.String("dir", c.dir), zap.Error(err))
		}
		return nil
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			c.logger.Warn("metadata unreadable", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			c.logger.Warn("metadata corrupt", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, meta)
	}
	return out
}

// Delete removes the entry for hash. Returns true when the index file was
// removed; the sidecar removal is best-effort.
func (c *Cache) Delete(hash string) bool {
	indexErr := os.Remove(c.indexPath(hash))
	if err := os.Remove(c.metadataPath(hash)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("metadata delete failed", zap.String("hash", hash), zap.Error(err))
	}
	if indexErr != nil {
		if !os.IsNotExist(indexErr) {
			c.logger.Warn("index delete failed", zap.String("hash", hash), zap.Error(indexErr))
		}
		return false
	}
	return true
}

func (c *Cache) indexPath(hash string) string {
	return filepath.Join(c.dir, hash+indexSuffix)
}

func (c *Cache) metadataPath(hash string) string {
	return filepath.Join(c.dir, hash+metadataSuffix)
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial entry.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
