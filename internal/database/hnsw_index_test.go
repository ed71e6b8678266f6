package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/facepass/internal/facematch"
)

func mustUpsert(t *testing.T, idx *DescriptorIndex, userID int64, v []float32) {
	t.Helper()
	if err := idx.Upsert(userID, v); err != nil {
		t.Fatalf("Upsert(%d): %v", userID, err)
	}
}

func unitVector(dim, axis int, scale float32) []float32 {
	v := make([]float32, dim)
	v[axis] = scale
	return v
}

func TestDescriptorIndex_SearchBeforeBuild(t *testing.T) {
	idx := NewDescriptorIndex()
	if !idx.IsEmpty() {
		t.Error("new index should be empty")
	}
	if _, err := idx.Search(unitVector(8, 0, 1), 3); !errors.Is(err, ErrIndexNotInitialized) {
		t.Errorf("error = %v, want ErrIndexNotInitialized", err)
	}
}

func TestDescriptorIndex_BuildAndSearch(t *testing.T) {
	idx := NewDescriptorIndex()
	err := idx.Build([]StoredDescriptor{
		{UserID: 1, Descriptor: unitVector(8, 0, 1)},
		{UserID: 2, Descriptor: unitVector(8, 1, 1)},
		{UserID: 3, Descriptor: unitVector(8, 0, 0.9)},
		{UserID: 4, Descriptor: nil},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if idx.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", idx.Count())
	}

	neighbors, err := idx.Search(unitVector(8, 0, 1), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("len(neighbors) = %d, want 2", len(neighbors))
	}
	if neighbors[0].UserID != 1 || neighbors[0].Distance != 0 {
		t.Errorf("neighbors[0] = %+v, want user 1 at distance 0", neighbors[0])
	}
	if neighbors[1].UserID != 3 {
		t.Errorf("neighbors[1] = %+v, want user 3", neighbors[1])
	}
	if neighbors[0].Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", neighbors[0].Confidence)
	}
}

func TestDescriptorIndex_UpsertAndDelete(t *testing.T) {
	idx := NewDescriptorIndex()
	mustUpsert(t, idx, 1, unitVector(8, 0, 1))
	mustUpsert(t, idx, 2, unitVector(8, 1, 1))
	mustUpsert(t, idx, 1, unitVector(8, 2, 1))

	if idx.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", idx.Count())
	}

	neighbors, err := idx.Search(unitVector(8, 2, 1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].UserID != 1 {
		t.Errorf("neighbors = %+v, want re-enrolled user 1", neighbors)
	}

	idx.Delete(1)
	idx.Delete(99)
	neighbors, err = idx.Search(unitVector(8, 2, 1), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range neighbors {
		if n.UserID == 1 {
			t.Error("deleted user still returned")
		}
	}
}

func TestDescriptorIndex_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptors.hnsw")

	idx := NewDescriptorIndex()
	if err := idx.Build([]StoredDescriptor{
		{UserID: 10, Descriptor: unitVector(4, 0, 1)},
		{UserID: 20, Descriptor: unitVector(4, 1, 1)},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	mustUpsert(t, idx, 10, unitVector(4, 2, 1))
	if err := idx.SaveWithMetadata(path, HNSWIndexMetadata{}); err != nil {
		t.Fatalf("SaveWithMetadata: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata: %v", err)
	}
	if meta.DescriptorCount != 2 || meta.Version != hnswMetadataVersion {
		t.Errorf("metadata = %+v", meta)
	}

	loaded := NewDescriptorIndex()
	if err := loaded.Load(path, meta); err != nil {
		t.Fatalf("Load: %v", err)
	}
	neighbors, err := loaded.Search(unitVector(4, 1, 1), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 2 || neighbors[0].UserID != 20 || neighbors[1].UserID != 10 {
		t.Errorf("neighbors = %+v, want users 20 and 10 once each", neighbors)
	}

	// A re-enrollment after loading continues from the saved keys.
	mustUpsert(t, loaded, 30, unitVector(4, 3, 1))
	if loaded.Count() != 3 {
		t.Errorf("Count() = %d, want 3", loaded.Count())
	}

	meta.Version = 1
	if err := NewDescriptorIndex().Load(path, meta); err == nil {
		t.Error("expected error for an old metadata version")
	}
}

func TestDescriptorIndex_SaveEmptyRemovesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.hnsw")
	if err := NewDescriptorIndex().SaveWithMetadata(path, HNSWIndexMetadata{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadHNSWMetadata(path); err == nil {
		t.Error("expected no metadata for empty index")
	}
}

func TestDescriptorIndex_ReplaceOnlyUser(t *testing.T) {
	idx := NewDescriptorIndex()
	mustUpsert(t, idx, 1, unitVector(3, 0, 1))
	mustUpsert(t, idx, 1, unitVector(3, 1, 1))

	neighbors, err := idx.Search(unitVector(3, 1, 1), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].UserID != 1 || neighbors[0].Distance != 0 {
		t.Errorf("neighbors = %+v, want user 1 at its new descriptor", neighbors)
	}
}

func TestDescriptorIndex_DeleteOnlyUserThenEnrollAnother(t *testing.T) {
	idx := NewDescriptorIndex()
	mustUpsert(t, idx, 1, unitVector(3, 0, 1))
	idx.Delete(1)

	neighbors, err := idx.Search(unitVector(3, 0, 1), 3)
	if err != nil {
		t.Fatalf("Search on emptied index: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("neighbors = %+v, want none", neighbors)
	}

	mustUpsert(t, idx, 2, unitVector(3, 2, 1))
	neighbors, err = idx.Search(unitVector(3, 0, 1), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].UserID != 2 {
		t.Errorf("neighbors = %+v, want only user 2", neighbors)
	}
}

func TestDescriptorIndex_ManyReenrollmentsCompact(t *testing.T) {
	idx := NewDescriptorIndex()
	mustUpsert(t, idx, 1, unitVector(4, 0, 1))
	mustUpsert(t, idx, 2, unitVector(4, 1, 1))
	for i := 0; i < 50; i++ {
		mustUpsert(t, idx, 1, unitVector(4, i%4, float32(i+1)))
	}
	idx.Delete(2)
	mustUpsert(t, idx, 2, unitVector(4, 3, 1))

	if idx.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", idx.Count())
	}
	if live := idx.graph.Len(); live > 2*idx.Count() {
		t.Errorf("graph holds %d nodes for %d users, want compaction", live, idx.Count())
	}
	neighbors, err := idx.Search(unitVector(4, 1, 50), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 2 || neighbors[0].UserID != 1 {
		t.Errorf("neighbors = %+v, want user 1 first", neighbors)
	}
}

func TestDescriptorIndex_DimensionMismatch(t *testing.T) {
	idx := NewDescriptorIndex()
	err := idx.Build([]StoredDescriptor{
		{UserID: 1, Descriptor: unitVector(4, 0, 1)},
		{UserID: 2, Descriptor: unitVector(4, 1, 1)},
		{UserID: 3, Descriptor: unitVector(8, 0, 1)},
	})
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Fatalf("Build error = %v, want ErrDimensionMismatch", err)
	}
	if idx.Count() != 2 || idx.Dims() != 4 {
		t.Errorf("Count() = %d, Dims() = %d, want 2 users of length 4", idx.Count(), idx.Dims())
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"search", func() error { _, err := idx.Search(unitVector(8, 0, 1), 1); return err }},
		{"upsert", func() error { return idx.Upsert(4, unitVector(8, 0, 1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, facematch.ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch, got %v", err)
			}
		})
	}

	// Once every user is gone the index accepts a new length.
	idx.Delete(1)
	idx.Delete(2)
	mustUpsert(t, idx, 5, unitVector(8, 0, 1))
	if idx.Dims() != 8 {
		t.Errorf("Dims() = %d, want 8", idx.Dims())
	}
}
