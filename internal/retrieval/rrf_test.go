package retrieval_test

import (
	"math"
	"testing"

	"github.com/lunavale/mnemo/internal/retrieval"
)

const scoreEps = 1e-12

func TestFuse_SingleListScores(t *testing.T) {
	t.Parallel()
	fused := retrieval.Fuse([]string{"a", "b", "c"}, nil)
	if len(fused) != 3 {
		t.Fatalf("got %d items, want 3", len(fused))
	}
	// Rank r in a single list scores exactly 1/(61+r).
	for r, want := range []float64{1.0 / 61, 1.0 / 62, 1.0 / 63} {
		if got := fused[r].Score; math.Abs(got-want) > scoreEps {
			t.Errorf("rank %d score = %v, want %v", r, got, want)
		}
	}
}

func TestFuse_BothListsAccumulate(t *testing.T) {
	t.Parallel()
	fused := retrieval.Fuse(
		[]string{"shared", "semantic-only"},
		[]string{"keyword-only", "shared"},
	)

	scores := make(map[string]float64, len(fused))
	for _, f := range fused {
		scores[f.Text] = f.Score
	}

	wantShared := 1.0/61 + 1.0/62
	if got := scores["shared"]; math.Abs(got-wantShared) > scoreEps {
		t.Errorf("shared score = %v, want %v", got, wantShared)
	}
	// An item in both lists scores strictly higher than it would in either
	// list alone at the same ranks.
	if scores["shared"] <= 1.0/61 {
		t.Error("shared item should outscore its single-list contribution")
	}
	if fused[0].Text != "shared" {
		t.Errorf("top item = %q, want shared", fused[0].Text)
	}
}

func TestFuse_DeduplicatesByText(t *testing.T) {
	t.Parallel()
	fused := retrieval.Fuse([]string{"x", "x"}, nil)
	if len(fused) != 1 {
		t.Fatalf("got %d items, want 1", len(fused))
	}
	want := 1.0/61 + 1.0/62
	if got := fused[0].Score; math.Abs(got-want) > scoreEps {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestFuse_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	// Same rank in each list means identical scores; the semantic item was
	// seen first and must stay first.
	fused := retrieval.Fuse([]string{"sem"}, []string{"kw"})
	if len(fused) != 2 {
		t.Fatalf("got %d items, want 2", len(fused))
	}
	if fused[0].Text != "sem" || fused[1].Text != "kw" {
		t.Errorf("tie order = [%s %s], want [sem kw]", fused[0].Text, fused[1].Text)
	}
}

func TestFuse_EmptyInputs(t *testing.T) {
	t.Parallel()
	if fused := retrieval.Fuse(nil, nil); fused != nil {
		t.Errorf("expected nil for empty inputs, got %v", fused)
	}
}

func TestTopTexts(t *testing.T) {
	t.Parallel()
	fused := retrieval.Fuse([]string{"a", "b", "c"}, nil)
	top := retrieval.TopTexts(fused, 2)
	if len(top) != 2 || top[0] != "a" || top[1] != "b" {
		t.Errorf("TopTexts = %v, want [a b]", top)
	}
	if got := retrieval.TopTexts(fused, 10); len(got) != 3 {
		t.Errorf("TopTexts with n beyond length = %v, want all 3", got)
	}
}
