// Package classify labels event windows quiet or disturbed from their
// integrated spectral power. Classification is population-relative, so it
// is split into two explicit phases: compute a threshold from a batch,
// then label each event against that threshold. Tests (and callers that
// want a fixed cutoff) can run the second phase alone.
package classify

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"mstid-music/models"
	"mstid-music/utils"
)

// Threshold derives the disturbed/quiet cutoff from the integrated-PSD
// sums of an entire same-radar batch. With the percentile method the
// batch composition matters: re-running against a different batch may
// relabel history, which is expected and made explicit by recording the
// threshold and batch size alongside every label.
func Threshold(sums []float64, cfg utils.ClassifyConfig) (float64, error) {
	switch cfg.Method {
	case "fixed":
		return cfg.FixedThreshold, nil
	case "percentile":
		if len(sums) == 0 {
			return 0, fmt.Errorf("%w: empty batch for percentile threshold", models.ErrConfig)
		}
		if cfg.Percentile <= 0 || cfg.Percentile >= 1 {
			return 0, fmt.Errorf("%w: percentile %.3f outside (0, 1)", models.ErrConfig, cfg.Percentile)
		}
		sorted := append([]float64(nil), sums...)
		sort.Float64s(sorted)
		return stat.Quantile(cfg.Percentile, stat.Empirical, sorted, nil), nil
	default:
		return 0, fmt.Errorf("%w: unknown classify method %q", models.ErrConfig, cfg.Method)
	}
}

// Label marks an event disturbed when its integrated spectral sum exceeds
// the batch threshold.
func Label(sum, threshold float64) models.Category {
	if sum > threshold {
		return models.CategoryDisturbed
	}
	return models.CategoryQuiet
}
