package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
)

func TestShortTermMemory(t *testing.T) {
	m := NewShortTermMemory[int](3)
	for i := 1; i <= 5; i++ {
		m.Add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, m.Items())
	assert.Equal(t, 3, m.Len())

	def := NewShortTermMemory[string](0)
	for i := 0; i < DefaultShortTermCapacity+2; i++ {
		def.Add("x")
	}
	assert.Equal(t, DefaultShortTermCapacity, def.Len())
}

func sampleValue(summary string) interfaces.MemoryValue {
	return interfaces.MemoryValue{
		Summary:    summary,
		Sentiment:  &interfaces.Sentiment{Positive: 0.5, Neutral: 0.25, Negative: 0.25, Label: "positive"},
		Risks:      []string{"market_risk"},
		GoodPoints: []string{"Revenue grew."},
	}
}

func storeParity(t *testing.T, store interfaces.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	recs, err := store.QueryAll(ctx, "mdna_agent", "mdna")
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, store.Upsert(ctx, "mdna_agent", "mdna", "chunk_0", sampleValue("first")))
	require.NoError(t, store.Upsert(ctx, "mdna_agent", "mdna", "chunk_0", sampleValue("second")))
	require.NoError(t, store.Upsert(ctx, "mdna_agent", "", "run", sampleValue("global")))
	require.NoError(t, store.Upsert(ctx, "other_agent", "mdna", "chunk_1", sampleValue("other")))

	recs, err = store.QueryAll(ctx, "mdna_agent", "mdna")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Value.Summary)
	assert.Equal(t, "second", recs[1].Value.Summary)
	assert.Equal(t, "chunk_0", recs[1].Key)
	assert.Equal(t, "mdna_agent", recs[0].Agent)
	assert.Equal(t, "positive", recs[0].Value.Sentiment.Label)
	assert.False(t, recs[0].CreatedAt.IsZero())

	global, err := store.QueryAll(ctx, "mdna_agent", "")
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, GlobalSection, global[0].Section)

	assert.Error(t, store.Upsert(ctx, "", "mdna", "k", sampleValue("x")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Upsert(cancelled, "a", "b", "c", sampleValue("x")), context.Canceled)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	storeParity(t, store)

	_, err = os.Stat(filepath.Join(dir, "mdna_agent", "global.jsonl"))
	assert.NoError(t, err)

	agents, err := store.Agents()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mdna_agent", "other_agent"}, agents)
}

func TestFileStoreSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "a", "esg", "k1", sampleValue("ok")))

	f, err := os.OpenFile(filepath.Join(dir, "a", "esg.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Upsert(ctx, "a", "esg", "k2", sampleValue("also ok")))

	recs, err := store.QueryAll(ctx, "a", "esg")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k2", recs[1].Key)
}

func TestFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("  ")
	assert.Error(t, err)
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "memory")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		agent   string
		section string
	}{
		{"parent agent", "..", "mdna"},
		{"agent with separator", "../escape", "mdna"},
		{"section with separator", "mdna_agent", "../../escape"},
		{"windows separator", `mdna_agent\x`, "mdna"},
		{"dot section", "mdna_agent", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Upsert(ctx, tt.agent, tt.section, "k", interfaces.MemoryValue{Summary: "x"})
			assert.ErrorIs(t, err, ErrInvalidName)
			_, err = s.QueryAll(ctx, tt.agent, tt.section)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "memory", entries[0].Name())

	require.NoError(t, s.Upsert(ctx, "mdna_agent", "", "k", interfaces.MemoryValue{Summary: "global"}))
	assert.FileExists(t, filepath.Join(dir, "mdna_agent", GlobalSection+".jsonl"))
}

func TestFileStoreConcurrentWrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Upsert(ctx, "agent", "mdna", "k", sampleValue("v")))
		}()
	}
	wg.Wait()

	recs, err := store.QueryAll(ctx, "agent", "mdna")
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestSQLStore(t *testing.T) {
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "nested", "memory.db"))
	require.NoError(t, err)
	defer store.Close()

	storeParity(t, store)
}

func TestSQLStoreReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	store, err := OpenSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "a", "mdna", "k", sampleValue("persisted")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.QueryAll(ctx, "a", "mdna")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "persisted", recs[0].Value.Summary)
}

func TestSQLStoreWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStoreWithDB(db)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO memories`).
		WithArgs("agent", "global", "key", sqlmock.AnyArg(), fixed.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Upsert(ctx, "agent", "", "key", sampleValue("x")))

	mock.ExpectExec(`INSERT INTO memories`).WillReturnError(errors.New("disk full"))
	err = store.Upsert(ctx, "agent", "mdna", "key", sampleValue("x"))
	assert.ErrorContains(t, err, "disk full")

	rows := sqlmock.NewRows([]string{"memory_key", "value", "created_at"}).
		AddRow("good", `{"summary":"ok"}`, fixed.UnixMilli()).
		AddRow("bad", `not json`, fixed.UnixMilli())
	mock.ExpectQuery(`SELECT memory_key, value, created_at FROM memories`).
		WithArgs("agent", "mdna").
		WillReturnRows(rows)
	recs, err := store.QueryAll(ctx, "agent", "mdna")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].Value.Summary)
	assert.Equal(t, fixed, recs[0].CreatedAt)

	mock.ExpectQuery(`SELECT memory_key`).WillReturnError(errors.New("locked"))
	_, err = store.QueryAll(ctx, "agent", "mdna")
	assert.ErrorContains(t, err, "locked")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()
	f := NewFactory()

	fileStore, err := f.Create(&config.MemoryConfig{Backend: "file", Dir: filepath.Join(dir, "files")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fileStore)

	sqlStore, err := f.Create(&config.MemoryConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "m.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, sqlStore)
	require.NoError(t, sqlStore.Close())

	_, err = f.Create(&config.MemoryConfig{Backend: "redis"})
	assert.Error(t, err)

	broken, err := f.Create(&config.MemoryConfig{Backend: "file"})
	assert.Error(t, err)
	assert.Nil(t, broken)
}

func TestCollaborative(t *testing.T) {
	c := NewCollaborative()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var (
		mu       sync.Mutex
		received []string
	)
	c.Subscribe("esg_agent", "mdna_agent", func(subscriber string, in SharedInsight) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, subscriber+":"+in.Content)
	})

	c.Share(SharedInsight{Agent: "mdna_agent", Section: "mdna", Content: "first", Timestamp: base})
	c.Share(SharedInsight{Agent: "mdna_agent", Section: "mdna", Content: "second", Timestamp: base.Add(time.Hour), RelatedSections: []string{"esg"}})
	c.Share(SharedInsight{Agent: "audit_agent", Section: "audit_report", Content: "third"})

	assert.Equal(t, []string{"esg_agent:first", "esg_agent:second"}, received)
	assert.Equal(t, []string{"mdna_agent"}, c.Publishers("esg_agent"))
	assert.Equal(t, 3, c.Len())

	assert.Len(t, c.AgentInsights("mdna_agent", time.Time{}), 2)
	later := c.AgentInsights("mdna_agent", base)
	require.Len(t, later, 1)
	assert.Equal(t, "second", later[0].Content)

	esg := c.SectionInsights("esg")
	require.Len(t, esg, 1)
	assert.Equal(t, "second", esg[0].Content)

	c.AddCrossReference("mdna", "audit_report")
	c.AddCrossReference("audit_report", "mdna")
	c.AddCrossReference("mdna", "mdna")
	assert.Equal(t, []string{"audit_report"}, c.RelatedSections("mdna"))
	assert.Equal(t, []string{"mdna"}, c.RelatedSections("audit_report"))

	all := c.CollaborativeInsights("mdna")
	assert.Len(t, all["mdna"], 2)
	assert.Len(t, all["audit_report"], 1)
}
