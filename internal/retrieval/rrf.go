package retrieval

import "slices"

// DefaultRRFK is the standard reciprocal-rank-fusion smoothing constant.
const DefaultRRFK = 60

// FusedItem is one deduplicated retrieval result with its accumulated
// fusion score.
type FusedItem struct {
	Text  string
	Score float64
}

// Fuse merges two ranked candidate lists with Reciprocal Rank Fusion.
//
// Each occurrence of an item at 0-based rank r contributes 1/(k + r + 1) to
// that item's score, with k = [DefaultRRFK]; an item present in both lists
// accumulates both contributions. Duplicate texts coalesce into a single
// entry. The result is sorted by descending score; ties keep first-seen
// order, so a pure semantic hit at rank r stays ahead of a pure keyword hit
// at the same rank.
func Fuse(semantic, keyword []string) []FusedItem {
	if len(semantic) == 0 && len(keyword) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	var order []string

	accumulate := func(list []string) {
		for rank, text := range list {
			if _, seen := scores[text]; !seen {
				order = append(order, text)
			}
			scores[text] += 1.0 / float64(DefaultRRFK+rank+1)
		}
	}
	accumulate(semantic)
	accumulate(keyword)

	fused := make([]FusedItem, 0, len(order))
	for _, text := range order {
		fused = append(fused, FusedItem{Text: text, Score: scores[text]})
	}
	slices.SortStableFunc(fused, func(a, b FusedItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return fused
}

// TopTexts returns the texts of the first n fused items.
func TopTexts(fused []FusedItem, n int) []string {
	if n > len(fused) {
		n = len(fused)
	}
	out := make([]string, 0, n)
	for _, f := range fused[:n] {
		out = append(out, f.Text)
	}
	return out
}
