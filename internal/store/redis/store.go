// Package redis implements the remote DocStore backend over a Redis 8+ instance with
// JSON documents and an FT vector index.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/noterag/noterag/internal/db"
	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	"github.com/noterag/noterag/internal/store"
)

// Compile-time check: Store implements store.DocStore.
var _ store.DocStore = (*Store)(nil)

// backend is the consumer interface for note storage (ISP).
type backend interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// jsonDoc is the stored JSON shape of a note.
type jsonDoc struct {
	Text      string    `json:"text"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
	Vector    []float32 `json:"vector,omitempty"`
}

// Config holds key naming and index parameters.
type Config struct {
	KeyPrefix   string // e.g. "noterag:"
	VectorDim   int
	HNSWM       int
	EFConstruct int
}

// Store is the remote backend. Connectivity-class failures surface as
// domain.ErrConnectivity so the fallback controller can demote.
type Store struct {
	b   backend
	cfg Config

	mu          sync.RWMutex
	initialized bool
}

// New creates a remote note store over the given database.
func New(b backend, cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "noterag:"
	}
	return &Store{b: b, cfg: cfg}
}

// Init creates the FT vector index if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	exists, err := s.b.IndexExists(ctx, s.indexName())
	if err != nil {
		return wrapStoreErr("check index", err)
	}
	if !exists {
		def := &db.IndexDefinition{
			Name:        s.indexName(),
			StorageType: db.StorageJSON,
			Prefixes:    []string{s.docPrefix()},
			Fields: []db.IndexField{
				{
					Name:              "$.vector",
					Alias:             "vector",
					Type:              db.IndexFieldVector,
					VectorAlgo:        db.VectorHNSW,
					VectorDim:         s.cfg.VectorDim,
					VectorDistance:    db.DistanceCosine,
					VectorM:           s.cfg.HNSWM,
					VectorEFConstruct: s.cfg.EFConstruct,
				},
				{Name: "$.timestamp", Alias: "timestamp", Type: db.IndexFieldNumeric},
			},
		}
		if err := s.b.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return wrapStoreErr("create index", err)
		}
	}

	s.initialized = true
	return nil
}

// Add idempotently upserts a note by id.
func (s *Store) Add(ctx context.Context, n note.Note) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	data, err := marshalDoc(n)
	if err != nil {
		return err
	}
	if err := s.b.JSONSet(ctx, s.docKey(n.ID()), "$", data); err != nil {
		return wrapStoreErr("json.set", err)
	}
	return nil
}

// Update upserts by id. Unlike the local backend, a missing id is not an error here:
// JSON.SET recreates the document, which is acceptable remote-backend semantics.
func (s *Store) Update(ctx context.Context, n note.Note) error {
	return s.Add(ctx, n)
}

// Delete removes a note, or fails with domain.ErrNoteNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	key := s.docKey(id)
	exists, err := s.b.Exists(ctx, key)
	if err != nil {
		return wrapStoreErr("check exists", err)
	}
	if !exists {
		return domain.ErrNoteNotFound
	}
	if err := s.b.Del(ctx, key); err != nil {
		return wrapStoreErr("del", err)
	}
	return nil
}

// Get returns a note by id.
func (s *Store) Get(ctx context.Context, id string) (note.Note, error) {
	if err := s.requireInit(); err != nil {
		return note.Note{}, err
	}

	raw, err := s.b.JSONGet(ctx, s.docKey(id), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return note.Note{}, domain.ErrNoteNotFound
		}
		return note.Note{}, wrapStoreErr("json.get", err)
	}
	return parseJSONGetResult(id, raw)
}

// All returns every note, newest first, via a paginated FT.SEARCH walk.
func (s *Store) All(ctx context.Context) ([]note.Note, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	const pageSize = 500
	var notes []note.Note
	offset := 0

	for {
		result, err := s.b.SearchList(ctx, s.indexName(), "*", offset, pageSize, []string{"$"})
		if err != nil {
			return nil, wrapStoreErr("search list", err)
		}
		if result == nil || len(result.Entries) == 0 {
			break
		}
		for _, entry := range result.Entries {
			id := s.extractID(entry.Key)
			n, perr := parseDocJSON(id, []byte(entry.Fields["$"]))
			if perr != nil {
				continue
			}
			notes = append(notes, n)
		}
		if len(result.Entries) < pageSize {
			break
		}
		offset += pageSize
	}

	sortNewestFirst(notes)
	return notes, nil
}

// Query runs a KNN similarity search and post-filters by threshold. The db layer maps
// cosine distance to a [0,1] similarity score.
func (s *Store) Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]store.Hit, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	q := &db.KNNQuery{
		IndexName:    s.indexName(),
		Vector:       vector,
		K:            limit,
		ReturnFields: []string{"$", "__vector_score"},
	}
	result, err := s.b.SearchKNN(ctx, q)
	if err != nil {
		return nil, wrapStoreErr("search knn", err)
	}
	if result == nil {
		return nil, nil
	}

	hits := make([]store.Hit, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if entry.Score < threshold {
			continue
		}
		id := s.extractID(entry.Key)
		n, perr := parseDocJSON(id, []byte(entry.Fields["$"]))
		if perr != nil {
			continue
		}
		hits = append(hits, store.Hit{Note: n, Score: entry.Score})
	}
	return hits, nil
}

// Count returns the number of stored notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.requireInit(); err != nil {
		return 0, err
	}

	n, err := s.b.SearchCount(ctx, s.indexName(), "*")
	if err != nil {
		return 0, wrapStoreErr("search count", err)
	}
	return n, nil
}

// ListIDs returns the ids of all stored notes.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	const pageSize = 1000
	var ids []string
	offset := 0

	for {
		result, err := s.b.SearchList(ctx, s.indexName(), "*", offset, pageSize, []string{"$.timestamp"})
		if err != nil {
			return nil, wrapStoreErr("search list", err)
		}
		if result == nil || len(result.Entries) == 0 {
			break
		}
		for _, entry := range result.Entries {
			ids = append(ids, s.extractID(entry.Key))
		}
		if len(result.Entries) < pageSize {
			break
		}
		offset += pageSize
	}

	return ids, nil
}

func (s *Store) requireInit() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

func (s *Store) docPrefix() string {
	return s.cfg.KeyPrefix + "notes:"
}

func (s *Store) docKey(id string) string {
	return s.docPrefix() + id
}

func (s *Store) indexName() string {
	return s.cfg.KeyPrefix + "notes:idx"
}

func (s *Store) extractID(key string) string {
	return strings.TrimPrefix(key, s.docPrefix())
}

func marshalDoc(n note.Note) ([]byte, error) {
	data, err := json.Marshal(jsonDoc{
		Text:      n.Text(),
		Title:     n.Title(),
		URL:       n.URL(),
		Timestamp: n.Timestamp(),
		Tags:      n.Tags(),
		Vector:    n.Vector(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}
	return data, nil
}

// parseJSONGetResult handles the JSONPath "$" wrapper array returned by JSON.GET.
func parseJSONGetResult(id string, raw []byte) (note.Note, error) {
	var docs []jsonDoc
	if err := json.Unmarshal(raw, &docs); err == nil && len(docs) > 0 {
		return fromDoc(id, docs[0]), nil
	}
	return parseDocJSON(id, raw)
}

func parseDocJSON(id string, raw []byte) (note.Note, error) {
	var d jsonDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return note.Note{}, fmt.Errorf("parse note %s: %w", id, err)
	}
	return fromDoc(id, d), nil
}

func fromDoc(id string, d jsonDoc) note.Note {
	return note.Reconstruct(id, d.Text, d.Title, d.URL, d.Timestamp, d.Tags, d.Vector)
}

func sortNewestFirst(notes []note.Note) {
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].Timestamp() > notes[j].Timestamp()
	})
}

// wrapStoreErr maps db-layer unavailability to domain.ErrConnectivity; everything else
// keeps its operation context.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, db.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConnectivity, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
