package memory

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"report-analyzer/pkg/interfaces"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLStore persists memories in a SQLite table.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLStore opens (or creates) the database at path and applies the schema.
func OpenSQLStore(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", cleanPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewSQLStoreWithDB(db), nil
}

// NewSQLStoreWithDB wraps an existing handle. The schema is assumed to exist.
func NewSQLStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func applyMigrations(db *sql.DB) error {
	files, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stripComments(stmt)) == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Upsert inserts a record. Earlier records with the same key are kept.
func (s *SQLStore) Upsert(ctx context.Context, agent, section, key string, value interfaces.MemoryValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if agent == "" {
		return fmt.Errorf("agent name is required")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (agent, section, memory_key, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		agent, sectionKey(section), key, string(payload), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// QueryAll returns every record for agent and section in insertion order. Rows with an unreadable
// value are skipped.
func (s *SQLStore) QueryAll(ctx context.Context, agent, section string) ([]interfaces.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_key, value, created_at FROM memories WHERE agent = ? AND section = ? ORDER BY id`,
		agent, sectionKey(section),
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []interfaces.MemoryRecord
	for rows.Next() {
		var (
			key, raw  string
			createdAt int64
		)
		if err := rows.Scan(&key, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		var value interfaces.MemoryValue
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			continue
		}
		out = append(out, interfaces.MemoryRecord{
			Agent:     agent,
			Section:   sectionKey(section),
			Key:       key,
			Value:     value,
			CreatedAt: time.UnixMilli(createdAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
