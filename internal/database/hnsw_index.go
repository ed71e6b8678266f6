package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/facepass/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
// Nodes maps graph keys to user IDs; keys of replaced descriptors are absent.
type HNSWIndexMetadata struct {
	DescriptorCount int             `json:"descriptor_count"`
	LastUpdated     time.Time       `json:"last_updated"`
	BuildTime       time.Time       `json:"build_time"`
	Version         int             `json:"version"`
	Dims            int             `json:"dims"`
	NextKey         int64           `json:"next_key"`
	Nodes           map[int64]int64 `json:"nodes"`
}

const hnswMetadataVersion = 2

// ErrIndexNotInitialized is returned when searching an index that was never built.
var ErrIndexNotInitialized = errors.New("index not initialized")

// Neighbor is a user found near a query descriptor.
type Neighbor struct {
	UserID     int64   `json:"user_id"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// DescriptorIndex wraps an HNSW graph over Euclidean distance. It answers
// approximate "who looks closest" queries; access decisions use the exact
// linear scan of the matcher instead.
//
// coder/hnsw cannot reliably delete nodes, so every insert gets a fresh graph
// key and a replaced or deleted descriptor only loses its entry in owners.
// The graph is rebuilt from the live nodes once stale keys outnumber them.
type DescriptorIndex struct {
	graph   *hnsw.Graph[int64]
	owners  map[int64]int64 // graph key -> user ID, live nodes only
	keys    map[int64]int64 // user ID -> graph key
	nextKey int64
	dims    int
	built   bool
	mu      sync.RWMutex
}

// NewDescriptorIndex creates a new empty index.
func NewDescriptorIndex() *DescriptorIndex {
	return &DescriptorIndex{owners: make(map[int64]int64), keys: make(map[int64]int64)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given descriptors. All entries
// must share one length; when they do not, the most common length is indexed
// and the rest are left out with an ErrDimensionMismatch error.
func (h *DescriptorIndex) Build(descriptors []StoredDescriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reset()
	h.built = true

	h.dims = commonLength(descriptors)
	skipped := 0
	for i := range descriptors {
		d := &descriptors[i]
		if len(d.Descriptor) == 0 {
			continue
		}
		if len(d.Descriptor) != h.dims {
			skipped++
			continue
		}
		h.add(d.UserID, d.Descriptor)
	}
	if skipped > 0 {
		return fmt.Errorf("%w: left out %d descriptors not of length %d", facematch.ErrDimensionMismatch, skipped, h.dims)
	}
	return nil
}

// commonLength returns the most frequent non-zero descriptor length,
// preferring the shorter one on ties.
func commonLength(descriptors []StoredDescriptor) int {
	counts := make(map[int]int)
	best := 0
	for i := range descriptors {
		n := len(descriptors[i].Descriptor)
		if n == 0 {
			continue
		}
		counts[n]++
		if counts[n] > counts[best] || (counts[n] == counts[best] && n < best) {
			best = n
		}
	}
	return best
}

func (h *DescriptorIndex) reset() {
	h.graph = nil
	h.owners = make(map[int64]int64)
	h.keys = make(map[int64]int64)
	h.nextKey = 0
	h.dims = 0
}

// add inserts a node under a fresh key. The caller holds the write lock.
func (h *DescriptorIndex) add(userID int64, descriptor []float32) {
	if h.graph == nil {
		h.graph = newGraph()
	}
	if old, ok := h.keys[userID]; ok {
		delete(h.owners, old)
	}
	h.nextKey++
	key := h.nextKey
	h.graph.Add(hnsw.MakeNode(key, descriptor))
	h.owners[key] = userID
	h.keys[userID] = key
}

// Upsert inserts or replaces the descriptor of a user.
func (h *DescriptorIndex) Upsert(userID int64, descriptor []float32) error {
	if len(descriptor) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.built = true
	if len(h.owners) == 0 {
		// Nothing live: start over, possibly with a new length.
		h.reset()
	}
	if h.dims == 0 {
		h.dims = len(descriptor)
	}
	if len(descriptor) != h.dims {
		return fmt.Errorf("%w: user %d has length %d, index has %d", facematch.ErrDimensionMismatch, userID, len(descriptor), h.dims)
	}
	h.add(userID, descriptor)
	h.compactIfStale()
	return nil
}

// Delete removes a user from the index.
func (h *DescriptorIndex) Delete(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key, ok := h.keys[userID]
	if !ok {
		return
	}
	delete(h.keys, userID)
	delete(h.owners, key)
	h.compactIfStale()
}

// compactIfStale rebuilds the graph from live nodes once stale keys
// outnumber them. The caller holds the write lock.
func (h *DescriptorIndex) compactIfStale() {
	if h.graph == nil {
		return
	}
	stale := h.graph.Len() - len(h.owners)
	if stale <= len(h.owners) && stale < hnswCompactMinStale {
		return
	}

	type live struct {
		userID int64
		vector []float32
	}
	nodes := make([]live, 0, len(h.owners))
	for key, userID := range h.owners {
		if vec, ok := h.graph.Lookup(key); ok {
			nodes = append(nodes, live{userID: userID, vector: vec})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].userID < nodes[j].userID })

	dims := h.dims
	h.reset()
	h.dims = dims
	for _, n := range nodes {
		h.add(n.userID, n.vector)
	}
}

// Search finds up to k users nearest to the query, closest first.
func (h *DescriptorIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.built {
		return nil, ErrIndexNotInitialized
	}
	if k <= 0 || len(h.owners) == 0 {
		return []Neighbor{}, nil
	}
	if len(query) != h.dims {
		return nil, fmt.Errorf("%w: query has length %d, index has %d", facematch.ErrDimensionMismatch, len(query), h.dims)
	}

	stale := h.graph.Len() - len(h.owners)
	nodes := h.graph.Search(query, k*HNSWSearchMultiplier+stale)
	neighbors := make([]Neighbor, 0, min(k, len(nodes)))
	for _, n := range nodes {
		userID, ok := h.owners[n.Key]
		if !ok {
			continue
		}
		d, err := facematch.EuclideanDistance(query, n.Value)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", userID, err)
		}
		neighbors = append(neighbors, Neighbor{
			UserID:     userID,
			Distance:   d,
			Confidence: facematch.ConfidenceFromDistance(d),
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].UserID < neighbors[j].UserID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Count returns the number of indexed users.
func (h *DescriptorIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners)
}

// Dims returns the descriptor length of the index, 0 when empty.
func (h *DescriptorIndex) Dims() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dims
}

// IsEmpty returns true if the index was never built or loaded.
func (h *DescriptorIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.built
}

// SaveWithMetadata persists the graph and a .meta file used for staleness detection.
func (h *DescriptorIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.owners) == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metadata.DescriptorCount = len(h.owners)
	metadata.Dims = h.dims
	metadata.NextKey = h.nextKey
	metadata.Nodes = make(map[int64]int64, len(h.owners))
	for key, userID := range h.owners {
		metadata.Nodes[key] = userID
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load replaces the index with a graph saved at path, using the node
// mapping from its metadata.
func (h *DescriptorIndex) Load(path string, metadata HNSWIndexMetadata) error {
	if metadata.Version != hnswMetadataVersion {
		return fmt.Errorf("unsupported HNSW index version %d", metadata.Version)
	}
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	h.graph = saved.Graph
	h.dims = metadata.Dims
	h.nextKey = metadata.NextKey
	for key, userID := range metadata.Nodes {
		h.owners[key] = userID
		h.keys[userID] = key
	}
	h.built = true
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
