package database

// HNSW index parameters for 128-dim face descriptors
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to make up for entries removed from the index but still in the graph.
	HNSWSearchMultiplier = 3

	// hnswCompactMinStale is the number of replaced nodes that triggers a
	// rebuild even while live nodes still outnumber them.
	hnswCompactMinStale = 256
)

// GalleryCacheKey is the cache key of the full descriptor gallery.
const GalleryCacheKey = "gallery"
