package ranking

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/onnwee/swipestack/internal/profile"
)

// Reasons reported when diversity injection does nothing.
const (
	SkipBelowThreshold = "pool_below_threshold"
	SkipZeroBudget     = "budget_rounds_to_zero"
	SkipNoAlternatives = "no_underrepresented_candidates"
)

// DiversityReport describes what diversity injection did.
type DiversityReport struct {
	Applied    bool     `json:"applied"`
	SkipReason string   `json:"skip_reason,omitempty"`
	PoolSize   int      `json:"pool_size"`
	TopN       int      `json:"top_n"`
	Budget     int      `json:"budget"`
	Promoted   []string `json:"promoted,omitempty"`
	Demoted    []string `json:"demoted,omitempty"`
}

// diversityDimension extracts one demographic value from a profile.
type diversityDimension struct {
	name  string
	value func(p *profile.UserProfile, now time.Time) string
}

var diversityDimensions = []diversityDimension{
	{"gender", func(p *profile.UserProfile, _ time.Time) string { return profile.Normalize(p.Gender) }},
	{"ethnicity", func(p *profile.UserProfile, _ time.Time) string { return profile.Normalize(p.Ethnicity) }},
	{"religion", func(p *profile.UserProfile, _ time.Time) string { return profile.Normalize(p.Religion) }},
	{"age_bracket", func(p *profile.UserProfile, now time.Time) string { return AgeBracket(p.AgeAt(now)) }},
}

// AgeBracket buckets an age for diversity accounting. Unknown ages yield "".
func AgeBracket(age int) string {
	switch {
	case age < 18:
		return ""
	case age < 25:
		return "18-24"
	case age < 30:
		return "25-29"
	case age < 35:
		return "30-34"
	case age < 45:
		return "35-44"
	case age < 55:
		return "45-54"
	default:
		return "55+"
	}
}

// Diversify substitutes up to ⌊fraction·topN⌋ of the top-N entries with
// candidates from further down whose demographic values are absent from
// the current top-N. Promoted candidates take the tail of the top-N in
// score order; demoted ones follow directly after it. Pools smaller than
// the threshold are returned unchanged.
func Diversify(ranked []Candidate, topN int, cfg DiversityWeights, now time.Time, logger *slog.Logger) ([]Candidate, DiversityReport) {
	if logger == nil {
		logger = slog.Default()
	}
	report := DiversityReport{PoolSize: len(ranked)}

	if len(ranked) < cfg.Threshold {
		report.SkipReason = SkipBelowThreshold
		logger.Debug("diversity injection skipped",
			"reason", report.SkipReason,
			"pool_size", len(ranked),
			"threshold", cfg.Threshold)
		return ranked, report
	}

	n := topN
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	report.TopN = n
	report.Budget = int(math.Floor(cfg.Fraction * float64(n)))
	if report.Budget == 0 {
		report.SkipReason = SkipZeroBudget
		logger.Debug("diversity injection skipped", "reason", report.SkipReason, "top_n", n)
		return ranked, report
	}

	values := make([][]string, len(ranked))
	for i := range ranked {
		values[i] = make([]string, len(diversityDimensions))
		if ranked[i].Profile == nil {
			continue
		}
		for d, dim := range diversityDimensions {
			values[i][d] = dim.value(ranked[i].Profile, now)
		}
	}

	counts := make([]map[string]int, len(diversityDimensions))
	for d := range counts {
		counts[d] = make(map[string]int)
		for i := 0; i < n; i++ {
			if v := values[i][d]; v != "" {
				counts[d][v]++
			}
		}
	}

	// Greedily pick the most novel candidates outside the top-N.
	picked := make(map[int]bool)
	var promoted []int
	for len(promoted) < report.Budget {
		best, bestNovelty := -1, 0
		for i := n; i < len(ranked); i++ {
			if picked[i] {
				continue
			}
			novelty := 0
			for d := range diversityDimensions {
				if v := values[i][d]; v != "" && counts[d][v] == 0 {
					novelty++
				}
			}
			if novelty > bestNovelty {
				best, bestNovelty = i, novelty
			}
		}
		if best < 0 {
			break
		}
		picked[best] = true
		promoted = append(promoted, best)
		for d := range diversityDimensions {
			if v := values[best][d]; v != "" {
				counts[d][v]++
			}
		}
	}

	// Demote from the bottom of the top-N, never removing the last
	// representative of a value.
	var demoted []int
	for i := n - 1; i >= 0 && len(demoted) < len(promoted); i-- {
		sole := false
		for d := range diversityDimensions {
			if v := values[i][d]; v != "" && counts[d][v] <= 1 {
				sole = true
				break
			}
		}
		if sole {
			continue
		}
		demoted = append(demoted, i)
		for d := range diversityDimensions {
			if v := values[i][d]; v != "" {
				counts[d][v]--
			}
		}
	}

	if len(demoted) == 0 {
		report.SkipReason = SkipNoAlternatives
		logger.Debug("diversity injection skipped", "reason", report.SkipReason, "top_n", n)
		return ranked, report
	}
	// Keep the promotions whose swap partners exist, favoring higher scores.
	sort.Ints(promoted)
	promoted = promoted[:len(demoted)]
	sort.Ints(demoted)

	isDemoted := make(map[int]bool, len(demoted))
	for _, i := range demoted {
		isDemoted[i] = true
	}
	isPromoted := make(map[int]bool, len(promoted))
	for _, i := range promoted {
		isPromoted[i] = true
	}

	out := make([]Candidate, 0, len(ranked))
	for i := 0; i < n; i++ {
		if !isDemoted[i] {
			out = append(out, ranked[i])
		}
	}
	for _, i := range promoted {
		c := ranked[i]
		c.Breakdown.Diversified = true
		out = append(out, c)
		report.Promoted = append(report.Promoted, c.ID)
	}
	for _, i := range demoted {
		out = append(out, ranked[i])
		report.Demoted = append(report.Demoted, ranked[i].ID)
	}
	for i := n; i < len(ranked); i++ {
		if !isPromoted[i] {
			out = append(out, ranked[i])
		}
	}

	report.Applied = true
	logger.Info("diversity injection applied",
		"pool_size", len(ranked),
		"top_n", n,
		"budget", report.Budget,
		"promoted", report.Promoted,
		"demoted", report.Demoted)
	return out, report
}
