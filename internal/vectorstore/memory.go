package vectorstore

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/coder/hnsw"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

// memoryFileExt is the per-collection snapshot file extension.
const memoryFileExt = ".gob"

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// MemoryStore is an in-process VectorStore using coder/hnsw cosine graphs.
// When opened with a directory it loads collections from there and writes
// them back on Close.
type MemoryStore struct {
	dir    string
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]*memCollection
	closed      bool
}

var _ VectorStore = (*MemoryStore)(nil)

// memCollection is one HNSW graph plus the id mapping around it.
// Overwritten and removed points are orphaned in the graph (coder/hnsw
// misbehaves when its last node is deleted) and dropped on rebuild.
type memCollection struct {
	dims    int
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // point id -> graph key
	keyMap  map[uint64]string // graph key -> point id
	nextKey uint64

	vectors  map[string][]float32
	payloads map[string][]byte // JSON, so payloads read back as they would from Qdrant
}

// memSnapshot is the gob form of a collection.
type memSnapshot struct {
	Dims     int
	Vectors  map[string][]float32
	Payloads map[string][]byte
}

// NewMemoryStore creates an empty store that is never persisted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logger:      slog.Default(),
		collections: make(map[string]*memCollection),
	}
}

// OpenMemoryStore loads every collection snapshot under dir; a missing
// directory starts empty.
func OpenMemoryStore(dir string, logger *slog.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemoryStore{
		dir:         dir,
		logger:      logger,
		collections: make(map[string]*memCollection),
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, sverrors.VectorStoreUnavailable(fmt.Sprintf("failed to read store directory %s", dir), err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != memoryFileExt {
			continue
		}
		coll, err := loadCollection(filepath.Join(dir, name))
		if err != nil {
			return nil, sverrors.VectorStoreUnavailable(fmt.Sprintf("failed to load collection %s", name), err)
		}
		collName := name[:len(name)-len(memoryFileExt)]
		s.collections[collName] = coll
		logger.Debug("collection_loaded",
			slog.String("collection", collName),
			slog.Int("points", len(coll.idMap)))
	}
	return s, nil
}

func newMemCollection(dims int) *memCollection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &memCollection{
		dims:     dims,
		graph:    graph,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		vectors:  make(map[string][]float32),
		payloads: make(map[string][]byte),
	}
}

// EnsureCollection implements VectorStore.
func (s *MemoryStore) EnsureCollection(_ context.Context, name string, dims int) (int, error) {
	if !collectionNameRegex.MatchString(name) {
		return 0, sverrors.InvalidInput(fmt.Sprintf("invalid collection name %q", name))
	}
	if dims <= 0 {
		return 0, sverrors.InvalidInput(fmt.Sprintf("invalid dimension %d", dims))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}

	if coll, ok := s.collections[name]; ok {
		return coll.dims, nil
	}
	s.collections[name] = newMemCollection(dims)
	s.logger.Info("collection_created",
		slog.String("collection", name),
		slog.Int("dimensions", dims))
	return dims, nil
}

// Dimensions implements VectorStore.
func (s *MemoryStore) Dimensions(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}
	if coll, ok := s.collections[name]; ok {
		return coll.dims, nil
	}
	return 0, nil
}

// Upsert implements VectorStore. A batch is applied entirely or not at all.
func (s *MemoryStore) Upsert(ctx context.Context, name string, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	coll, ok := s.collections[name]
	if !ok {
		return sverrors.VectorStoreUpsert(fmt.Sprintf("collection %s does not exist", name), nil)
	}
	if err := checkDims(points, coll.dims); err != nil {
		return sverrors.VectorStoreUpsert(err.Error(), err)
	}

	payloads := make([][]byte, len(points))
	for i, p := range points {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return sverrors.VectorStoreUpsert(fmt.Sprintf("payload for %s is not serializable", p.ID), err)
		}
		payloads[i] = raw
	}

	for i, p := range points {
		coll.put(p.ID, p.Vector, payloads[i])
	}
	if coll.orphans() > len(coll.idMap) {
		coll.rebuild()
	}
	return nil
}

// put must be called with the store lock held.
func (c *memCollection) put(id string, vector []float32, payload []byte) {
	if key, exists := c.idMap[id]; exists {
		delete(c.keyMap, key)
		delete(c.idMap, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	key := c.nextKey
	c.nextKey++
	c.graph.Add(hnsw.MakeNode(key, vec))
	c.idMap[id] = key
	c.keyMap[key] = id
	c.vectors[id] = vec
	c.payloads[id] = payload
}

func (c *memCollection) orphans() int {
	return c.graph.Len() - len(c.idMap)
}

// rebuild replaces the graph with one holding only live points.
func (c *memCollection) rebuild() {
	fresh := newMemCollection(c.dims)
	for id, vec := range c.vectors {
		fresh.put(id, vec, c.payloads[id])
	}
	*c = *fresh
}

// Query implements VectorStore.
func (s *MemoryStore) Query(ctx context.Context, name string, vector []float32, limit int) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	coll, ok := s.collections[name]
	if !ok || limit <= 0 || len(coll.idMap) == 0 {
		return []ScoredPoint{}, nil
	}
	if len(vector) != coll.dims {
		return nil, sverrors.DimensionMismatch(coll.dims, len(vector))
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	// Oversample so orphans cannot crowd out live points and ties at the
	// cut-off are resolved by id rather than by graph order.
	k := min(2*limit+coll.orphans(), coll.graph.Len())
	nodes := coll.graph.Search(query, k)

	results := make([]ScoredPoint, 0, min(limit, len(nodes)))
	for _, node := range nodes {
		id, live := coll.keyMap[node.Key]
		if !live {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(coll.payloads[id], &payload); err != nil {
			return nil, sverrors.InternalError(fmt.Sprintf("corrupt payload for %s", id), err)
		}
		results = append(results, ScoredPoint{
			ID:      id,
			Score:   1 - coll.graph.Distance(query, node.Value),
			Payload: payload,
		})
	}

	sortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteBySource implements VectorStore.
func (s *MemoryStore) DeleteBySource(ctx context.Context, name string, relPaths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(relPaths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	coll, ok := s.collections[name]
	if !ok {
		return nil
	}

	targets := make(map[string]bool, len(relPaths))
	for _, p := range relPaths {
		targets[p] = true
	}

	removed := 0
	for id, raw := range coll.payloads {
		var payload struct {
			Metadata struct {
				FilePath string `json:"file_path"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || !targets[payload.Metadata.FilePath] {
			continue
		}
		coll.remove(id)
		removed++
	}
	if removed > 0 && coll.orphans() > len(coll.idMap) {
		coll.rebuild()
	}
	return nil
}

// remove orphans id in the graph; must be called with the store lock held.
func (c *memCollection) remove(id string) {
	if key, ok := c.idMap[id]; ok {
		delete(c.keyMap, key)
		delete(c.idMap, id)
	}
	delete(c.vectors, id)
	delete(c.payloads, id)
}

// Count implements VectorStore.
func (s *MemoryStore) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}
	if coll, ok := s.collections[name]; ok {
		return len(coll.idMap), nil
	}
	return 0, nil
}

// Health implements VectorStore.
func (s *MemoryStore) Health(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed()
	}
	return nil
}

// Save writes every collection to the store directory. Each file is
// replaced atomically (temp file + rename).
func (s *MemoryStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed()
	}
	return s.saveLocked()
}

func (s *MemoryStore) saveLocked() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	for name, coll := range s.collections {
		path := filepath.Join(s.dir, name+memoryFileExt)
		if err := saveCollection(path, coll); err != nil {
			return fmt.Errorf("failed to save collection %s: %w", name, err)
		}
	}
	return nil
}

// Close implements VectorStore, saving collections first.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.saveLocked()
	s.closed = true
	s.collections = nil
	return err
}

func saveCollection(path string, coll *memCollection) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	snap := memSnapshot{Dims: coll.dims, Vectors: coll.vectors, Payloads: coll.payloads}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func loadCollection(path string) (*memCollection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close snapshot file", slog.String("error", err.Error()))
		}
	}()

	var snap memSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Dims <= 0 {
		return nil, fmt.Errorf("snapshot has invalid dimension %d", snap.Dims)
	}

	coll := newMemCollection(snap.Dims)
	for id, vec := range snap.Vectors {
		coll.put(id, vec, snap.Payloads[id])
	}
	return coll, nil
}

func errClosed() error {
	return sverrors.VectorStoreUnavailable("store is closed", nil)
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
