// Package ranking provides the centralized weight configuration for the
// discovery pipeline together with its final stages.
//
// Basic Usage:
//
//	// Load calibration once at startup
//	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
//	if err != nil {
//		logger.Warn("using default ranking weights", "error", err)
//	}
//
//	// Scorers fill in each candidate's breakdown, then:
//	ranked := ranking.Rank(candidates, weights)
//	ranked, report := ranking.Diversify(ranked, limit, weights.Diversity, now, logger)
//
// Calibration:
//
// Every constant used by the scorers lives in Weights: the hybrid blend,
// the content, collaborative and context blends, the priority rank weights,
// the neutral defaults and the diversity parameters. A calibration file
// only needs the keys it changes:
//
//	{
//	  "version": "2026-10",
//	  "weights": {
//	    "hybrid": {"content": 0.45, "collaborative": 0.30},
//	    "diversity": {"threshold": 8}
//	  }
//	}
//
// Zero values in the file mean "keep the default". Merged weights must
// pass Validate (each blend sums to 1) or the defaults are used.
//
// Determinism:
//
// Rank orders by final score descending and candidate id ascending, and
// Diversify is a pure function of its inputs, so identical inputs always
// produce identical output.
package ranking
