package matcher

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/xrash/smetrics"

	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

// similarity scores how alike a normalized query is to a catalog name or
// alias, in [0, 1]. It takes the best of several measures so that typos,
// transpositions, word reordering and partial names all score well:
//
//   - Jaro-Winkler on the compact forms (typos, shared prefixes)
//   - normalized Wagner-Fischer edit distance (transpositions, insertions)
//   - token overlap on singular words (reordered multi-word phrases)
//   - containment, when the query is a substring or an in-order
//     subsequence of the target ("postgre" in "postgresql")
func similarity(queryNorm, target string) float64 {
	tn := textnorm.Normalize(target)
	qc := strings.ReplaceAll(queryNorm, " ", "")
	tc := strings.ReplaceAll(tn, " ", "")
	if qc == "" || tc == "" {
		return 0
	}

	var best float64
	if comparable(qc, tc) {
		if dist, longest := editDistance(qc, tc); dist <= maxEdits(longest) {
			best = smetrics.JaroWinkler(qc, tc, 0.7, 4)
			if s := 1 - float64(dist)/float64(longest); s > best {
				best = s
			}
		}
	}
	if s := tokenOverlap(queryNorm, tn); s > best {
		best = s
	}
	if s := containment(qc, tc); s > best {
		best = s
	}
	return best
}

// minLengthRatio keeps the character measures to strings of similar
// length. Jaro-Winkler rates "containerorchestration" close to "container"
// because of the shared prefix.
const minLengthRatio = 0.6

// comparable gates the character measures: the strings must start with the
// same rune and be of similar length, and the edit distance is capped by
// maxEdits. Without the first-rune check an
// unknown name such as "foocache" scores above 0.8 against "caches".
func comparable(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if ra[0] != rb[0] {
		return false
	}
	la, lb := len(ra), len(rb)
	if la > lb {
		la, lb = lb, la
	}
	return float64(la)/float64(lb) >= minLengthRatio
}

// editDistance returns the Wagner-Fischer distance and the longer rune length.
func editDistance(a, b string) (int, int) {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	return smetrics.WagnerFischer(a, b, 1, 1, 1), longest
}

// maxEdits is how many typos a name of n runes may carry and still count as
// the same name. Jaro-Winkler alone rewards a shared prefix too much:
// "barqueue" and "baremetal" score above 0.8.
func maxEdits(n int) int {
	switch {
	case n <= 5:
		return 1
	case n <= 10:
		return 2
	}
	return 3
}

// tokenOverlap is the Jaccard index of the singular word sets.
func tokenOverlap(a, b string) float64 {
	as := wordSet(a)
	bs := wordSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for w := range as {
		if bs[w] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[textnorm.Singular(w)] = true
	}
	return set
}

// containment rewards a query that is part of the target. A contiguous
// substring scores higher than a scattered subsequence, and both grow with
// the share of the target the query covers.
func containment(q, t string) float64 {
	if len(q) > len(t) {
		return 0
	}
	coverage := float64(len(q)) / float64(len(t))
	switch {
	case strings.Contains(t, q):
		return 0.6 + 0.4*coverage
	case fuzzy.Match(q, t):
		return 0.5 + 0.4*coverage
	}
	return 0
}
