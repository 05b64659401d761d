package embeddings

import (
	"context"
	"strings"
	"testing"
)

type cannedEmbedder struct {
	vecs [][]float32
}

func (e *cannedEmbedder) Name() string    { return "canned" }
func (e *cannedEmbedder) Dimensions() int { return 3 }

func (e *cannedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return e.vecs, nil
}

func TestToChromemFuncEmbedsSingleText(t *testing.T) {
	fn := ToChromemFunc(&cannedEmbedder{vecs: [][]float32{{0.1, 0.2, 0.3}}})

	vec, err := fn(context.Background(), "water rights")
	if err != nil {
		t.Fatalf("embedding: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("vector = %v", vec)
	}
}

func TestToChromemFuncRejectsEmptyBatchAnswer(t *testing.T) {
	fn := ToChromemFunc(&cannedEmbedder{})

	if _, err := fn(context.Background(), "water rights"); err == nil {
		t.Fatal("expected error when the embedder returns no vector")
	} else if !strings.Contains(err.Error(), "canned") {
		t.Errorf("error %q should name the embedder", err)
	}
}
