package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// HybridWeights blends the three scorer outputs into the final score.
type HybridWeights struct {
	Content       float64 `json:"content"`       // default 0.40
	Collaborative float64 `json:"collaborative"` // default 0.35
	Context       float64 `json:"context"`       // default 0.25
}

// ContentWeights blends the content-based sub-scores.
type ContentWeights struct {
	Jaccard       float64 `json:"jaccard"`        // default 0.25
	TFIDF         float64 `json:"tfidf"`          // default 0.20
	NumericCosine float64 `json:"numeric_cosine"` // default 0.30
	Preference    float64 `json:"preference"`     // default 0.25

	// FirstPriority, SecondPriority and ThirdPriority weight the ranked
	// matching priorities. Their sum need not be 1; alignment is divided by
	// the weight actually used.
	FirstPriority  float64 `json:"first_priority"`  // default 0.40
	SecondPriority float64 `json:"second_priority"` // default 0.30
	ThirdPriority  float64 `json:"third_priority"`  // default 0.20

	// NeutralPreference is the alignment reported for an empty priority list.
	NeutralPreference float64 `json:"neutral_preference"` // default 0.5
	// NeutralJaccard is reported when no categorical dimension is present
	// on both profiles.
	NeutralJaccard float64 `json:"neutral_jaccard"` // default 0.5
}

// CollaborativeWeights blends the collaborative sub-signals.
type CollaborativeWeights struct {
	Matrix      float64 `json:"matrix"`      // default 0.3
	Traditional float64 `json:"traditional"` // default 0.7

	// SecondOrderBoost scales the co-liking boost added to the matrix
	// signal when direct history exists.
	SecondOrderBoost float64 `json:"second_order_boost"` // default 0.2

	// Neutral is the blended score reported when neither component has data.
	Neutral float64 `json:"neutral"` // default 0.5
}

// ContextWeights blends the context-aware sub-scores.
type ContextWeights struct {
	Activity     float64 `json:"activity"`     // default 0.4
	Online       float64 `json:"online"`       // default 0.3
	Completeness float64 `json:"completeness"` // default 0.3

	ActivityHalfLifeHours float64 `json:"activity_half_life_hours"` // default 72
	ActivityFloor         float64 `json:"activity_floor"`           // default 0.1
	OnlineBoost           float64 `json:"online_boost"`             // default 0.7
	ChatEligibleBoost     float64 `json:"chat_eligible_boost"`      // default 1.0
	OnlineWindowMinutes   float64 `json:"online_window_minutes"`    // default 5
}

// DiversityWeights configures diversity injection.
type DiversityWeights struct {
	Threshold int     `json:"threshold"` // default 5
	Fraction  float64 `json:"fraction"`  // default 0.15
}

// Weights holds every tunable constant of the ranking pipeline.
type Weights struct {
	Hybrid        HybridWeights        `json:"hybrid"`
	Content       ContentWeights       `json:"content"`
	Collaborative CollaborativeWeights `json:"collaborative"`
	Context       ContextWeights       `json:"context"`
	Diversity     DiversityWeights     `json:"diversity"`
}

// CalibrationConfig is the JSON layout of a calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// ErrInvalidWeights is wrapped by Validate failures.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// DefaultWeights returns the production weight set.
//
//	final         = 0.40·content + 0.35·collaborative + 0.25·context
//	content       = 0.25·jaccard + 0.20·tfidf + 0.30·numericCosine + 0.25·preference
//	collaborative = 0.3·matrix + 0.7·traditional
//	context       = 0.4·activity + 0.3·online + 0.3·completeness
func DefaultWeights() *Weights {
	return &Weights{
		Hybrid: HybridWeights{
			Content:       0.40,
			Collaborative: 0.35,
			Context:       0.25,
		},
		Content: ContentWeights{
			Jaccard:           0.25,
			TFIDF:             0.20,
			NumericCosine:     0.30,
			Preference:        0.25,
			FirstPriority:     0.40,
			SecondPriority:    0.30,
			ThirdPriority:     0.20,
			NeutralPreference: 0.5,
			NeutralJaccard:    0.5,
		},
		Collaborative: CollaborativeWeights{
			Matrix:           0.3,
			Traditional:      0.7,
			SecondOrderBoost: 0.2,
			Neutral:          0.5,
		},
		Context: ContextWeights{
			Activity:              0.4,
			Online:                0.3,
			Completeness:          0.3,
			ActivityHalfLifeHours: 72,
			ActivityFloor:         0.1,
			OnlineBoost:           0.7,
			ChatEligibleBoost:     1.0,
			OnlineWindowMinutes:   5,
		},
		Diversity: DiversityWeights{
			Threshold: 5,
			Fraction:  0.15,
		},
	}
}

// PriorityWeights returns the rank weights in priority order.
func (w *Weights) PriorityWeights() []float64 {
	return []float64{w.Content.FirstPriority, w.Content.SecondPriority, w.Content.ThirdPriority}
}

type namedWeight struct {
	name string
	ptr  *float64
}

// floatFields lists every float weight with its calibration key.
func (w *Weights) floatFields() []namedWeight {
	return []namedWeight{
		{"hybrid.content", &w.Hybrid.Content},
		{"hybrid.collaborative", &w.Hybrid.Collaborative},
		{"hybrid.context", &w.Hybrid.Context},
		{"content.jaccard", &w.Content.Jaccard},
		{"content.tfidf", &w.Content.TFIDF},
		{"content.numeric_cosine", &w.Content.NumericCosine},
		{"content.preference", &w.Content.Preference},
		{"content.first_priority", &w.Content.FirstPriority},
		{"content.second_priority", &w.Content.SecondPriority},
		{"content.third_priority", &w.Content.ThirdPriority},
		{"content.neutral_preference", &w.Content.NeutralPreference},
		{"content.neutral_jaccard", &w.Content.NeutralJaccard},
		{"collaborative.matrix", &w.Collaborative.Matrix},
		{"collaborative.traditional", &w.Collaborative.Traditional},
		{"collaborative.second_order_boost", &w.Collaborative.SecondOrderBoost},
		{"collaborative.neutral", &w.Collaborative.Neutral},
		{"context.activity", &w.Context.Activity},
		{"context.online", &w.Context.Online},
		{"context.completeness", &w.Context.Completeness},
		{"context.activity_half_life_hours", &w.Context.ActivityHalfLifeHours},
		{"context.activity_floor", &w.Context.ActivityFloor},
		{"context.online_boost", &w.Context.OnlineBoost},
		{"context.chat_eligible_boost", &w.Context.ChatEligibleBoost},
		{"context.online_window_minutes", &w.Context.OnlineWindowMinutes},
		{"diversity.fraction", &w.Diversity.Fraction},
	}
}

// Validate checks that each blend sums to 1 and every weight is in range.
func (w *Weights) Validate() error {
	var errs []error
	for _, f := range w.floatFields() {
		if math.IsNaN(*f.ptr) || *f.ptr < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative, got %v", f.name, *f.ptr))
		}
	}
	blends := []struct {
		name string
		sum  float64
	}{
		{"hybrid", w.Hybrid.Content + w.Hybrid.Collaborative + w.Hybrid.Context},
		{"content", w.Content.Jaccard + w.Content.TFIDF + w.Content.NumericCosine + w.Content.Preference},
		{"collaborative", w.Collaborative.Matrix + w.Collaborative.Traditional},
		{"context", w.Context.Activity + w.Context.Online + w.Context.Completeness},
	}
	for _, b := range blends {
		if math.Abs(b.sum-1) > 1e-6 {
			errs = append(errs, fmt.Errorf("%s weights must sum to 1, got %.4f", b.name, b.sum))
		}
	}
	for _, f := range []namedWeight{
		{"content.neutral_preference", &w.Content.NeutralPreference},
		{"content.neutral_jaccard", &w.Content.NeutralJaccard},
		{"collaborative.neutral", &w.Collaborative.Neutral},
		{"context.activity_floor", &w.Context.ActivityFloor},
		{"context.online_boost", &w.Context.OnlineBoost},
		{"context.chat_eligible_boost", &w.Context.ChatEligibleBoost},
		{"diversity.fraction", &w.Diversity.Fraction},
	} {
		if *f.ptr > 1 {
			errs = append(errs, fmt.Errorf("%s must be at most 1, got %v", f.name, *f.ptr))
		}
	}
	if w.Diversity.Threshold < 0 {
		errs = append(errs, fmt.Errorf("diversity.threshold must be non-negative, got %d", w.Diversity.Threshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWeights, errors.Join(errs...))
	}
	return nil
}

// LoadCalibration loads weights from a JSON calibration file. An empty path
// returns the defaults. Partial files are merged over the defaults. On any
// error the defaults are returned together with the error so callers can
// keep serving.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration file rejected, using defaults",
			"path", filePath,
			"error", err)
		return defaults, err
	}
	logCalibrationOverrides(defaults, merged, config.Version)

	return merged, nil
}

// MergeCalibration returns base with every non-zero override applied.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	result := *base
	if override == nil {
		return &result
	}

	dst := result.floatFields()
	for i, f := range override.floatFields() {
		if *f.ptr != 0 {
			*dst[i].ptr = *f.ptr
		}
	}
	if override.Diversity.Threshold != 0 {
		result.Diversity.Threshold = override.Diversity.Threshold
	}
	return &result
}

func logCalibrationOverrides(defaults *Weights, loaded *Weights, version string) {
	var overrides []string
	before := defaults.floatFields()
	for i, f := range loaded.floatFields() {
		if *f.ptr != *before[i].ptr {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", f.name, *before[i].ptr, *f.ptr))
		}
	}
	if loaded.Diversity.Threshold != defaults.Diversity.Threshold {
		overrides = append(overrides, fmt.Sprintf("diversity.threshold: %d -> %d",
			defaults.Diversity.Threshold, loaded.Diversity.Threshold))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"version", version,
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)", "version", version)
	}
}
