package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"report-analyzer/pkg/interfaces"
)

// GlobalSection is used for records that do not belong to a section.
const GlobalSection = "global"

// ErrInvalidName is returned for agent or section names that are not a single path element.
var ErrInvalidName = errors.New("invalid memory name")

type fileRecord struct {
	Key       string                 `json:"key"`
	Value     interfaces.MemoryValue `json:"value"`
	CreatedAt time.Time              `json:"created_at"`
}

// FileStore appends memories as JSON lines under <dir>/<agent>/<section>.jsonl.
type FileStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewFileStore creates the base directory and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("memory directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func sectionKey(section string) string {
	if section == "" {
		return GlobalSection
	}
	return section
}

func (s *FileStore) path(agent, section string) (string, error) {
	section = sectionKey(section)
	for _, name := range []string{agent, section} {
		if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return filepath.Join(s.dir, agent, section+".jsonl"), nil
}

// Upsert appends a record. Earlier records with the same key are kept.
func (s *FileStore) Upsert(ctx context.Context, agent, section, key string, value interfaces.MemoryValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if agent == "" {
		return fmt.Errorf("agent name is required")
	}

	line, err := json.Marshal(fileRecord{Key: key, Value: value, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}

	path, err := s.path(agent, section)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create agent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open memory file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write memory: %w", err)
	}
	return nil
}

// QueryAll returns every record for agent and section in insertion order. Malformed lines are skipped.
func (s *FileStore) QueryAll(ctx context.Context, agent, section string) ([]interfaces.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(agent, section)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open memory file: %w", err)
	}
	defer f.Close()

	var out []interfaces.MemoryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec fileRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, interfaces.MemoryRecord{
			Agent:     agent,
			Section:   sectionKey(section),
			Key:       rec.Key,
			Value:     rec.Value,
			CreatedAt: rec.CreatedAt,
		})
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read memory file: %w", err)
	}
	return out, nil
}

// Agents lists the agents that have written memories.
func (s *FileStore) Agents() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Close is a no-op; files are closed after each call.
func (s *FileStore) Close() error { return nil }
