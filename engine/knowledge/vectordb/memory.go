package vectordb

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	doc      Document
	passages []Passage
}

// memoryStore keeps documents in process. Writers build a complete entry
// before swapping it in, so readers never see a partially replaced document.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]*memoryEntry
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore(dimension int) Store {
	return &memoryStore{dimension: dimension, docs: make(map[string]*memoryEntry)}
}

func (m *memoryStore) Replace(_ context.Context, doc *Document, passages []Passage) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("memory: replace: document id is required")
	}
	entry := &memoryEntry{doc: *doc, passages: make([]Passage, len(passages))}
	entry.doc.PassageCount = len(passages)
	entry.doc.Metadata = maps.Clone(doc.Metadata)
	if entry.doc.Metadata == nil {
		entry.doc.Metadata = map[string]any{}
	}
	entry.doc.UpdatedAt = time.Now().UTC()
	for i := range passages {
		if err := checkDimension(passages[i].Embedding, m.dimension); err != nil {
			return fmt.Errorf("memory: replace %q passage %d: %w", doc.ID, passages[i].Index, err)
		}
		p := passages[i]
		p.DocumentID = doc.ID
		p.Embedding = slices.Clone(p.Embedding)
		entry.passages[i] = p
	}
	m.mu.Lock()
	m.docs[doc.ID] = entry
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(query, m.dimension); err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	var allow map[string]struct{}
	if opts.DocumentIDs != nil {
		allow = make(map[string]struct{}, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			allow[id] = struct{}{}
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Match, 0)
	for id, entry := range m.docs {
		if allow != nil {
			if _, ok := allow[id]; !ok {
				continue
			}
		}
		for i := range entry.passages {
			p := &entry.passages[i]
			similarity := cosineSimilarity(query, p.Embedding)
			if similarity < opts.MinSimilarity {
				continue
			}
			matches = append(matches, Match{
				DocumentID: id,
				Title:      entry.doc.Title,
				SourceRef:  entry.doc.SourceRef,
				Index:      p.Index,
				Text:       p.Text,
				Timestamp:  p.Timestamp,
				Similarity: similarity,
			})
		}
	}
	return Rank(matches, opts.MaxPerDocument, opts.MaxResults), nil
}

func (m *memoryStore) SetDocumentMetadata(_ context.Context, id string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("memory: set metadata %q: %w", id, ErrDocumentNotFound)
	}
	next := *entry
	next.doc.Metadata = maps.Clone(entry.doc.Metadata)
	if next.doc.Metadata == nil {
		next.doc.Metadata = map[string]any{}
	}
	maps.Copy(next.doc.Metadata, metadata)
	next.doc.UpdatedAt = time.Now().UTC()
	m.docs[id] = &next
	return nil
}

func (m *memoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) MigrateLegacyIDs(_ context.Context, dryRun bool) (*MigrationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	report := planMigration(ids)
	report.DryRun = dryRun
	if dryRun {
		return report, nil
	}
	for _, change := range report.Renamed {
		entry := m.docs[change.From]
		next := &memoryEntry{doc: entry.doc, passages: make([]Passage, len(entry.passages))}
		next.doc.ID = change.To
		for i, p := range entry.passages {
			p.DocumentID = change.To
			next.passages[i] = p
		}
		delete(m.docs, change.From)
		m.docs[change.To] = next
	}
	for _, change := range report.Dropped {
		delete(m.docs, change.From)
	}
	return report, nil
}

// Document returns a copy of a stored document and its passages.
func (m *memoryStore) Document(id string) (Document, []Passage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.docs[id]
	if !ok {
		return Document{}, nil, false
	}
	doc := entry.doc
	doc.Metadata = maps.Clone(entry.doc.Metadata)
	return doc, slices.Clone(entry.passages), true
}

func (m *memoryStore) Ping(context.Context) error {
	return nil
}

func (m *memoryStore) Close(context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
