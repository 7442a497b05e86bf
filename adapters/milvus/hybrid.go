package milvus

import (
	"sort"
	"strings"
	"time"
)

// Re-ranking weights. The final score is cosine similarity plus a lexical
// match boost, a keyword boost per listed keyword hit, and a linear recency
// decay over 30 days.
const (
	substringBoost  = 0.5
	overlapWeight   = 0.3
	keywordBoost    = 0.1
	recencyMaxBoost = 0.1
	recencyWindow   = 30 // days
)

// Rerank sorts hits by the hybrid score and truncates to limit, dropping
// hits below minScore.
func Rerank(query string, hits []SearchHit, limit int, minScore float64) []SearchHit {
	queryLower := strings.ToLower(query)
	queryWords := fieldSet(queryLower)
	now := time.Now().UTC()

	scored := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		score := hit.Distance
		score += textMatch(queryLower, queryWords, hit.Content)
		for _, kw := range hit.Keywords {
			if kw != "" && strings.Contains(queryLower, strings.ToLower(strings.TrimSpace(kw))) {
				score += keywordBoost
			}
		}
		score += recencyBoost(hit.CreatedAt, now)
		hit.Score = score
		if score >= minScore {
			scored = append(scored, hit)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func textMatch(queryLower string, queryWords map[string]struct{}, content string) float64 {
	contentLower := strings.ToLower(content)
	var score float64
	if queryLower != "" && strings.Contains(contentLower, queryLower) {
		score += substringBoost
	}
	if len(queryWords) > 0 {
		matched := 0
		for word := range queryWords {
			if strings.Contains(contentLower, word) {
				matched++
			}
		}
		score += float64(matched) / float64(len(queryWords)) * overlapWeight
	}
	return score
}

func recencyBoost(createdAt string, now time.Time) float64 {
	if createdAt == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0
	}
	days := now.Sub(ts).Hours() / 24
	if days < 0 {
		days = 0
	}
	boost := (recencyWindow - days) / recencyWindow * recencyMaxBoost
	if boost < 0 {
		return 0
	}
	return boost
}

func fieldSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
