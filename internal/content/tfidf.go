package content

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/onnwee/swipestack/internal/profile"
)

var tokenRegex = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// minTokenLen drops very short words, which rarely carry meaning in a bio.
const minTokenLen = 3

// tokenize lowercases text and splits it on anything that is not a letter,
// digit, underscore or dash.
func tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := tokenRegex.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "-_")
		if len([]rune(p)) >= minTokenLen {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// profileText concatenates the free-text fields compared by TF-IDF.
func profileText(p *profile.UserProfile) string {
	parts := make([]string, 0, 4+len(p.Interests))
	parts = append(parts, p.Bio, p.Profession)
	parts = append(parts, p.Interests...)
	parts = append(parts, p.Education, p.RelationshipGoal)
	return strings.Join(parts, " ")
}

// termFrequency returns count/total for each token.
func termFrequency(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	total := float64(len(tokens))
	tf := make(map[string]float64, len(counts))
	for term, n := range counts {
		tf[term] = float64(n) / total
	}
	return tf
}

// TFIDFSimilarity returns the cosine similarity of the TF-IDF vectors of
// two texts, treating the pair as a two-document corpus. IDF is smoothed,
// idf = ln((1+N)/(1+df)) + 1, so shared terms keep a positive weight.
// Either text being empty yields 0.
func TFIDFSimilarity(a, b string) float64 {
	return tfidfCosine(termFrequency(tokenize(a)), termFrequency(tokenize(b)))
}

func tfidfCosine(tfA, tfB map[string]float64) float64 {
	if len(tfA) == 0 || len(tfB) == 0 {
		return 0
	}

	vocab := make([]string, 0, len(tfA)+len(tfB))
	for term := range tfA {
		vocab = append(vocab, term)
	}
	for term := range tfB {
		if _, ok := tfA[term]; !ok {
			vocab = append(vocab, term)
		}
	}
	sort.Strings(vocab)

	const docs = 2.0
	var dot, normA, normB float64
	for _, term := range vocab {
		a, inA := tfA[term]
		b, inB := tfB[term]
		df := 0.0
		if inA {
			df++
		}
		if inB {
			df++
		}
		idf := math.Log((1+docs)/(1+df)) + 1
		wa, wb := a*idf, b*idf
		dot += wa * wb
		normA += wa * wa
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
