package rerank

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// Lexical reorders retrieval candidates by blending their normalized vector
// score with query token overlap and a source-name hit. It is used by
// backends that have no hosted reranker.
type Lexical struct{}

func NewLexical() *Lexical {
	return &Lexical{}
}

// Rerank returns at most topN hits taken from candidates. Scores are replaced
// with the blended rerank score.
func (l *Lexical) Rerank(query string, candidates []domain.Hit, topN int) []domain.Hit {
	if len(candidates) == 0 || topN <= 0 {
		return []domain.Hit{}
	}

	scored := make([]domain.Hit, len(candidates))
	copy(scored, candidates)
	queryTokens := toTokenSet(query)

	minScore := scored[0].Score
	maxScore := scored[0].Score
	for _, hit := range scored[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range scored {
		normalizedScore := normalize(scored[i].Score)
		overlap := tokenOverlap(queryTokens, toTokenSet(scored[i].ChunkText))
		sourceBoost := sourceTokenHit(queryTokens, scored[i].Source)
		scored[i].Score = 0.60*normalizedScore + 0.30*overlap + 0.10*sourceBoost
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if topN > len(scored) {
		topN = len(scored)
	}
	return scored[:topN]
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func sourceTokenHit(query map[string]struct{}, source string) float64 {
	if len(query) == 0 || source == "" {
		return 0
	}
	source = strings.ToLower(source)
	for token := range query {
		if strings.Contains(source, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
