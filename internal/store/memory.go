package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// mirrors the PostgreSQL store's semantics, including workspace isolation,
// skipped-row exclusion, and a blocking per-workspace lock.
type MemoryStore struct {
	mu     sync.Mutex
	rows   []Row
	nextID int64

	dimension int
	locks     map[string]*sync.Mutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore whose schema declares the given
// vector dimension.
func NewMemory(dimension int) *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		dimension: dimension,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Rows returns a snapshot of all rows, ordered by id.
func (m *MemoryStore) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// RowsForPath returns a snapshot of rows for one workspace+model+path.
func (m *MemoryStore) RowsForPath(workspaceID, model, path string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Row
	for _, r := range m.rows {
		if r.WorkspaceID == workspaceID && r.Model == model && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) IndexedPaths(_ context.Context, workspaceID, model string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, r := range m.rows {
		if r.WorkspaceID == workspaceID && r.Model == model {
			seen[r.Path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MemoryStore) MTimes(_ context.Context, workspaceID, model string, paths []string) (map[string]int64, error) {
	requested := make(map[string]bool, len(paths))
	for _, p := range paths {
		requested[p] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, r := range m.rows {
		if r.WorkspaceID != workspaceID || r.Model != model || !requested[r.Path] {
			continue
		}
		if r.MTimeMS > out[r.Path] {
			out[r.Path] = r.MTimeMS
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteForPaths(_ context.Context, workspaceID, model string, paths []string) error {
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = filterRows(m.rows, func(r Row) bool {
		return !(r.WorkspaceID == workspaceID && r.Model == model && drop[r.Path])
	})
	return nil
}

func (m *MemoryStore) DeleteAbsent(_ context.Context, workspaceID, model string, keep []string) error {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = filterRows(m.rows, func(r Row) bool {
		if r.WorkspaceID != workspaceID || r.Model != model {
			return true
		}
		return keepSet[r.Path]
	})
	return nil
}

func (m *MemoryStore) ClearAll(_ context.Context, workspaceID, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = filterRows(m.rows, func(r Row) bool {
		return !(r.WorkspaceID == workspaceID && r.Model == model)
	})
	return nil
}

func (m *MemoryStore) Insert(_ context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r.ID = m.nextID
		m.nextID++
		m.rows = append(m.rows, r)
	}
	return nil
}

func (m *MemoryStore) Similar(_ context.Context, workspaceID, model string, vector []float32, k int, minSimilarity float64, scopeFiles []string) ([]SearchResult, error) {
	scope := make(map[string]bool, len(scopeFiles))
	for _, p := range scopeFiles {
		scope[p] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []SearchResult
	for _, r := range m.rows {
		if r.WorkspaceID != workspaceID || r.Model != model || r.Metadata.Skipped {
			continue
		}
		if len(scope) > 0 && !scope[r.Path] {
			continue
		}
		sim := CosineSimilarity(vector, r.Embedding)
		if sim >= minSimilarity {
			results = append(results, SearchResult{
				Path:       r.Path,
				Content:    r.Content,
				Similarity: sim,
				StartLine:  r.Metadata.StartLine,
				EndLine:    r.Metadata.EndLine,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) WithWorkspaceLock(ctx context.Context, workspaceID string, fn func(context.Context) error) error {
	m.mu.Lock()
	lock, ok := m.locks[workspaceID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[workspaceID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (m *MemoryStore) SchemaDimension(_ context.Context) (int, error) {
	return m.dimension, nil
}

func (m *MemoryStore) Stats(_ context.Context, workspaceID string) ([]ModelStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byModel := make(map[string]*ModelStats)
	for _, r := range m.rows {
		if r.WorkspaceID != workspaceID {
			continue
		}
		st, ok := byModel[r.Model]
		if !ok {
			st = &ModelStats{Model: r.Model}
			byModel[r.Model] = st
		}
		st.RowCount++
		st.TotalDataBytes += int64(len(r.Content))
	}

	models := make([]string, 0, len(byModel))
	for model := range byModel {
		models = append(models, model)
	}
	sort.Strings(models)

	stats := make([]ModelStats, 0, len(models))
	for _, model := range models {
		stats = append(stats, *byModel[model])
	}
	return stats, nil
}

func (m *MemoryStore) LastIndexedAt(_ context.Context, workspaceID, model string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest int64
	for _, r := range m.rows {
		if r.WorkspaceID == workspaceID && r.Model == model && r.MTimeMS > newest {
			newest = r.MTimeMS
		}
	}
	if newest == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(newest), nil
}

func (m *MemoryStore) Close() {}

func filterRows(rows []Row, keep func(Row) bool) []Row {
	out := rows[:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
