package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Persister reads and writes the whole reminders document
type Persister interface {
	// Load returns the stored document, or ErrNoDocument if nothing was saved yet
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored document
	Save(ctx context.Context, data []byte) error
	// Quarantine moves an unreadable document aside so a later Save cannot destroy it
	Quarantine(ctx context.Context) (string, error)
}

// FilePersister keeps the document in a single JSON file
type FilePersister struct {
	Path string
}

// NewFilePersister creates the parent directory of path if needed
func NewFilePersister(path string) (*FilePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FilePersister{Path: path}, nil
}

func (p *FilePersister) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Path, err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory and renames it over the document
func (p *FilePersister) Save(ctx context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.Path), filepath.Base(p.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", p.Path, err)
	}
	return nil
}

func (p *FilePersister) Quarantine(ctx context.Context) (string, error) {
	target := fmt.Sprintf("%s.corrupt-%d", p.Path, time.Now().Unix())
	if err := os.Rename(p.Path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", p.Path, err)
	}
	return target, nil
}

// RedisPersister keeps the same JSON document under a single Redis key
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister stores the document under key
func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = "babycare:reminders"
	}
	return &RedisPersister{client: client, key: key}
}

func (p *RedisPersister) Load(ctx context.Context) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.key, err)
	}
	return data, nil
}

func (p *RedisPersister) Save(ctx context.Context, data []byte) error {
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Quarantine(ctx context.Context) (string, error) {
	target := fmt.Sprintf("%s:corrupt:%d", p.key, time.Now().Unix())
	if err := p.client.Rename(ctx, p.key, target).Err(); err != nil {
		return "", fmt.Errorf("rename %s: %w", p.key, err)
	}
	return target, nil
}
