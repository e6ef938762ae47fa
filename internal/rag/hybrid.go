package rag

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"script-rag/internal/models"
)

// tokenRe extracts match tokens: each Han character stands alone (the
// script text has no word spacing), alphabetic words keep inner
// apostrophes, digit runs count as one token. Han must come first in
// the alternation or \p{L}+ would swallow whole CJK runs.
var tokenRe = regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// rankHybrid fuses the vector similarity already present in results
// with a keyword overlap score and re-sorts best first. The sort is
// stable, so equal fused scores keep the vector ranking.
func rankHybrid(question string, results []models.SearchResult, vectorWeight, keywordWeight float64) {
	qset := tokenSet(question)
	for i := range results {
		results[i].KeywordScore = ochiai(qset, results[i].Text)
		results[i].Score = vectorWeight*results[i].VectorScore + keywordWeight*results[i].KeywordScore
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ochiai is the token-set overlap coefficient |Q∩T| / sqrt(|Q|·|T|),
// 0 when either side has no tokens.
func ochiai(qset map[string]struct{}, text string) float64 {
	tset := tokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
