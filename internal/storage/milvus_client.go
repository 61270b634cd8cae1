// Package storage indexes analyzed chunks in a Milvus collection for similarity search.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
)

// Field names of the chunk collection.
const (
	FieldID         = "id"
	FieldText       = "text"
	FieldEmbedding  = "text_embedding"
	FieldChunkIndex = "chunk_index"
	FieldSource     = "source"
	FieldSection    = "section"
	FieldSentiment  = "sentiment"
)

const maxTextLength = 65535

var outputFields = []string{FieldText, FieldChunkIndex, FieldSource, FieldSection, FieldSentiment}

// MilvusClient implements the DatabaseClient interface for Milvus
type MilvusClient struct {
	client         client.Client
	embeddingDim   int
	collectionName string
}

// NewMilvusClient connects to Milvus.
func NewMilvusClient(ctx context.Context, cfg *config.DatabaseConfig, embeddingDim int) (*MilvusClient, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}

	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.GetURI(),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	return &MilvusClient{
		client:         c,
		embeddingDim:   embeddingDim,
		collectionName: cfg.Collection,
	}, nil
}

// CreateCollection creates the collection, its vector index, and loads it.
func (m *MilvusClient) CreateCollection(ctx context.Context, recreate bool) error {
	exists, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists && !recreate {
		return nil
	}
	if exists {
		if err := m.client.DropCollection(ctx, m.collectionName); err != nil {
			return fmt.Errorf("failed to drop existing collection: %w", err)
		}
	}

	if err := m.client.CreateCollection(ctx, buildSchema(m.collectionName, m.embeddingDim), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexFlat(entity.COSINE)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, FieldEmbedding, index, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// InsertChunks inserts analyzed chunks and flushes the collection.
func (m *MilvusClient) InsertChunks(ctx context.Context, chunks []interfaces.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	columns, err := buildColumns(chunks, m.embeddingDim)
	if err != nil {
		return err
	}

	if _, err := m.client.Insert(ctx, m.collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	return nil
}

// CheckDuplicate reports whether the chunk of source at chunkIndex is already stored.
func (m *MilvusClient) CheckDuplicate(ctx context.Context, source string, chunkIndex int) (bool, error) {
	filter := fmt.Sprintf("%s && %s == %d", sourceFilter(source), FieldChunkIndex, chunkIndex)

	results, err := m.client.Query(ctx, m.collectionName, []string{}, filter, []string{FieldID})
	if err != nil {
		return false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, col := range results {
		if col.Name() == FieldID {
			return col.Len() > 0, nil
		}
	}
	return false, nil
}

// Search returns the chunks closest to vector, optionally restricted to one section.
func (m *MilvusClient) Search(ctx context.Context, vector []float64, limit int, section string) ([]interfaces.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	expr := ""
	if section != "" {
		expr = fmt.Sprintf("%s == %s", FieldSection, quote(section))
	}

	results, err := m.client.Search(ctx, m.collectionName, []string{}, expr, outputFields,
		[]entity.Vector{entity.FloatVector(toFloat32(vector))},
		FieldEmbedding, entity.COSINE, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []interfaces.SearchResult
	for _, res := range results {
		chunks, err := chunksFromColumns(res.Fields, res.ResultCount)
		if err != nil {
			return nil, err
		}
		for i, c := range chunks {
			r := interfaces.SearchResult{Chunk: c}
			if i < len(res.Scores) {
				r.Score = float64(res.Scores[i])
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Close closes the Milvus client connection
func (m *MilvusClient) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func buildSchema(collection string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Analyzed annual report chunks",
		Fields: []*entity.Field{
			{
				Name:        FieldID,
				DataType:    entity.FieldTypeInt64,
				PrimaryKey:  true,
				AutoID:      true,
				Description: "Primary key",
			},
			{
				Name:        FieldText,
				DataType:    entity.FieldTypeVarChar,
				TypeParams:  map[string]string{"max_length": strconv.Itoa(maxTextLength)},
				Description: "Chunk text",
			},
			{
				Name:        FieldEmbedding,
				DataType:    entity.FieldTypeFloatVector,
				TypeParams:  map[string]string{"dim": strconv.Itoa(dim)},
				Description: "Text embedding vector",
			},
			{
				Name:        FieldChunkIndex,
				DataType:    entity.FieldTypeInt64,
				Description: "Index of chunk within the report",
			},
			{
				Name:        FieldSource,
				DataType:    entity.FieldTypeVarChar,
				TypeParams:  map[string]string{"max_length": "1000"},
				Description: "Source file path",
			},
			{
				Name:        FieldSection,
				DataType:    entity.FieldTypeVarChar,
				TypeParams:  map[string]string{"max_length": "64"},
				Description: "Routed report section",
			},
			{
				Name:        FieldSentiment,
				DataType:    entity.FieldTypeVarChar,
				TypeParams:  map[string]string{"max_length": "16"},
				Description: "Sentiment label",
			},
		},
	}
}

func buildColumns(chunks []interfaces.IndexedChunk, dim int) ([]entity.Column, error) {
	text := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	index := make([]int64, len(chunks))
	source := make([]string, len(chunks))
	section := make([]string, len(chunks))
	sentiment := make([]string, len(chunks))

	for i, c := range chunks {
		if len(c.TextEmbedding) != dim {
			return nil, fmt.Errorf("chunk %d: embedding has %d dimensions, want %d", c.ChunkIndex, len(c.TextEmbedding), dim)
		}
		text[i] = truncateRunes(c.Text, maxTextLength)
		vectors[i] = toFloat32(c.TextEmbedding)
		index[i] = int64(c.ChunkIndex)
		source[i] = c.Source
		section[i] = c.Section
		sentiment[i] = c.Sentiment
	}

	return []entity.Column{
		entity.NewColumnVarChar(FieldText, text),
		entity.NewColumnFloatVector(FieldEmbedding, dim, vectors),
		entity.NewColumnInt64(FieldChunkIndex, index),
		entity.NewColumnVarChar(FieldSource, source),
		entity.NewColumnVarChar(FieldSection, section),
		entity.NewColumnVarChar(FieldSentiment, sentiment),
	}, nil
}

func chunksFromColumns(cols []entity.Column, n int) ([]interfaces.IndexedChunk, error) {
	out := make([]interfaces.IndexedChunk, n)
	for _, col := range cols {
		for i := 0; i < n && i < col.Len(); i++ {
			switch c := col.(type) {
			case *entity.ColumnVarChar:
				v, err := c.ValueByIdx(i)
				if err != nil {
					return nil, fmt.Errorf("read %s: %w", col.Name(), err)
				}
				switch col.Name() {
				case FieldText:
					out[i].Text = v
				case FieldSource:
					out[i].Source = v
				case FieldSection:
					out[i].Section = v
				case FieldSentiment:
					out[i].Sentiment = v
				}
			case *entity.ColumnInt64:
				v, err := c.ValueByIdx(i)
				if err != nil {
					return nil, fmt.Errorf("read %s: %w", col.Name(), err)
				}
				if col.Name() == FieldChunkIndex {
					out[i].ChunkIndex = int(v)
				}
			}
		}
	}
	return out, nil
}

func sourceFilter(source string) string {
	return fmt.Sprintf("%s == %s", FieldSource, quote(source))
}

// quote renders s as a Milvus string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	size := 0
	for i, r := range s {
		w := utf8.RuneLen(r)
		if size+w > n {
			return s[:i]
		}
		size += w
	}
	return s
}
