package embedding

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity(Vector{1, 0}, Vector{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %v", got)
	}
	if got := CosineSimilarity(Vector{1, 0}, Vector{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %v", got)
	}
	if got := CosineSimilarity(Vector{1, 0}, Vector{1, 0, 0}); got != 0 {
		t.Errorf("mismatched dims must score 0, got %v", got)
	}
	if got := CosineSimilarity(Vector{0, 0}, Vector{1, 0}); got != 0 {
		t.Errorf("zero vector must score 0, got %v", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := Vector{0.5, -1.25, 3.75}
	got := DecodeVector(EncodeVector(v))
	if len(got) != len(v) {
		t.Fatalf("length mismatch: %d", len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: %v != %v", i, got[i], v[i])
		}
	}
}

func TestDecodeTruncatedBlob(t *testing.T) {
	if got := DecodeVector([]byte{1, 2, 3}); got != nil {
		t.Fatalf("blob shorter than one float must decode to nil, got %v", got)
	}
	if got := DecodeVector(nil); got != nil {
		t.Fatalf("nil blob must decode to nil, got %v", got)
	}
}

func TestNewDisabledProvider(t *testing.T) {
	if p := New("", "", ""); p != nil {
		t.Fatal("empty provider name must disable embeddings")
	}
}
