package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/facematch"
)

// DescriptorRepository provides PostgreSQL-backed face descriptor storage
// with an optional in-memory HNSW index for nearest-user queries.
type DescriptorRepository struct {
	pool          *Pool
	logger        *logrus.Logger
	hnswIndex     *database.DescriptorIndex
	hnswEnabled   bool
	hnswIndexPath string
	hnswMu        sync.RWMutex
}

// NewDescriptorRepository creates a new PostgreSQL descriptor repository.
// A nil logger discards index messages.
func NewDescriptorRepository(pool *Pool, logger *logrus.Logger) *DescriptorRepository {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &DescriptorRepository{pool: pool, logger: logger}
}

const descriptorColumns = `id, user_id, embedding, dim, model, created_at, updated_at`

func scanDescriptor(scanner interface{ Scan(...any) error }) (database.StoredDescriptor, error) {
	var d database.StoredDescriptor
	var vec pgvector.Vector
	if err := scanner.Scan(&d.ID, &d.UserID, &vec, &d.Dim, &d.Model, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err //nolint:wrapcheck // wrapped by callers
	}
	d.Descriptor = vec.Slice()
	return d, nil
}

// GetDescriptor retrieves the descriptor of a user, returns nil if not enrolled
func (r *DescriptorRepository) GetDescriptor(ctx context.Context, userID int64) (*database.StoredDescriptor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+descriptorColumns+` FROM face_descriptors WHERE user_id = $1`, userID)
	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get descriptor: %w", err)
	}
	return &d, nil
}

// ListDescriptors returns every enrolled descriptor ordered by user ID.
// The stable order makes identification ties deterministic.
func (r *DescriptorRepository) ListDescriptors(ctx context.Context) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+descriptorColumns+` FROM face_descriptors ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", err)
	}
	defer rows.Close()

	var result []database.StoredDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return result, nil
}

// Count returns the number of enrolled descriptors
func (r *DescriptorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_descriptors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}

// SaveDescriptor upserts the descriptor of a user in a single statement, so
// concurrent enrollments for the same user resolve to the last writer.
func (r *DescriptorRepository) SaveDescriptor(ctx context.Context, userID int64, descriptor []float32, model string) (int64, error) {
	query := `
		INSERT INTO face_descriptors (user_id, embedding, dim, model)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			model = EXCLUDED.model,
			updated_at = NOW()
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, userID, pgvector.NewVector(descriptor), len(descriptor), model).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save descriptor: %w", err)
	}

	if idx := r.enabledIndex(); idx != nil {
		if err := idx.Upsert(userID, descriptor); err != nil {
			// The row is stored; only nearest-user answers miss this user.
			r.logger.WithError(err).WithField("user_id", userID).Error("descriptor not added to HNSW index")
		}
	}
	return id, nil
}

// DeleteDescriptor removes the descriptor of a user
func (r *DescriptorRepository) DeleteDescriptor(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM face_descriptors WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	if idx := r.enabledIndex(); idx != nil {
		idx.Delete(userID)
	}
	return nil
}

// enabledIndex returns the HNSW index, or nil when it is disabled.
func (r *DescriptorRepository) enabledIndex() *database.DescriptorIndex {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled {
		return nil
	}
	return r.hnswIndex
}

// Nearest returns the k users closest to descriptor. It uses the HNSW index
// when enabled and falls back to pgvector's L2 operator otherwise.
func (r *DescriptorRepository) Nearest(ctx context.Context, descriptor []float32, k int) ([]database.Neighbor, error) {
	if idx := r.enabledIndex(); idx != nil {
		neighbors, err := idx.Search(descriptor, k)
		if err == nil {
			return neighbors, nil
		}
		if !errors.Is(err, database.ErrIndexNotInitialized) {
			return nil, fmt.Errorf("search HNSW index: %w", err)
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, embedding <-> $1 AS distance
		FROM face_descriptors
		WHERE dim = $2
		ORDER BY distance, user_id
		LIMIT $3
	`, pgvector.NewVector(descriptor), len(descriptor), k)
	if err != nil {
		return nil, fmt.Errorf("nearest descriptors: %w", err)
	}
	defer rows.Close()

	neighbors := []database.Neighbor{}
	for rows.Next() {
		var n database.Neighbor
		if err := rows.Scan(&n.UserID, &n.Distance); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		n.Confidence = facematch.ConfidenceFromDistance(n.Distance)
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbors: %w", err)
	}
	return neighbors, nil
}

// indexStats returns the values recorded in the index metadata.
func (r *DescriptorRepository) indexStats(ctx context.Context) (int, time.Time, error) {
	var count int
	var lastUpdated time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(MAX(updated_at), 'epoch'::timestamptz) FROM face_descriptors",
	).Scan(&count, &lastUpdated)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get descriptor stats: %w", err)
	}
	return count, lastUpdated, nil
}

// tryLoadIndex loads the index from disk when its metadata matches the database.
func (r *DescriptorRepository) tryLoadIndex(indexPath string, count int, lastUpdated time.Time) bool {
	log := r.logger.WithField("path", indexPath)
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		log.WithError(err).Info("descriptor index metadata unreadable, rebuilding")
		return false
	}
	if metadata.DescriptorCount != count || !metadata.LastUpdated.Equal(lastUpdated) {
		log.WithFields(logrus.Fields{"db_count": count, "cached_count": metadata.DescriptorCount}).
			Info("descriptor index stale, rebuilding")
		return false
	}

	idx := database.NewDescriptorIndex()
	if err := idx.Load(indexPath, metadata); err != nil {
		log.WithError(err).Info("descriptor index not loaded, rebuilding")
		return false
	}
	r.hnswIndex = idx
	log.WithField("users", count).Info("descriptor index loaded from disk")
	return true
}

// EnableHNSW loads or builds the in-memory HNSW index.
// If indexPath is provided, it will try to load from disk first and save after building.
func (r *DescriptorRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	return r.buildHNSW(ctx, indexPath, true)
}

func (r *DescriptorRepository) buildHNSW(ctx context.Context, indexPath string, allowLoad bool) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, lastUpdated, err := r.indexStats(ctx)
	if err != nil {
		return err
	}

	if allowLoad && indexPath != "" && r.tryLoadIndex(indexPath, count, lastUpdated) {
		r.hnswEnabled = true
		return nil
	}

	descriptors, err := r.ListDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load descriptors: %w", err)
	}

	r.hnswIndex = database.NewDescriptorIndex()
	if err := r.hnswIndex.Build(descriptors); err != nil {
		// Mixed lengths mean enrollments from another model; those users
		// are only reachable through the PostgreSQL fallback.
		r.logger.WithError(err).Error("descriptor index built without some enrollments")
	}

	if indexPath != "" && len(descriptors) > 0 {
		metadata := database.HNSWIndexMetadata{LastUpdated: lastUpdated, BuildTime: time.Now()}
		if err := r.hnswIndex.SaveWithMetadata(indexPath, metadata); err != nil {
			r.logger.WithError(err).WithField("path", indexPath).Warn("failed to save HNSW index to disk")
		}
	}

	r.hnswEnabled = true
	return nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *DescriptorRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of users in the HNSW index.
func (r *DescriptorRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data, ignoring any
// index file on disk, and saves it when a path is configured.
func (r *DescriptorRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.buildHNSW(ctx, indexPath, false)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *DescriptorRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	_, lastUpdated, err := r.indexStats(context.Background())
	if err != nil {
		return err
	}

	metadata := database.HNSWIndexMetadata{LastUpdated: lastUpdated, BuildTime: time.Now()}
	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW descriptor index: %w", err)
	}
	return nil
}
