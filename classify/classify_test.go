package classify

import (
	"errors"
	"testing"

	"mstid-music/models"
	"mstid-music/utils"
)

func TestPercentileThresholdLabelsTopTail(t *testing.T) {
	// 100 distinct sums; the 90th-percentile threshold with a strict
	// comparison must label exactly the top 10 disturbed.
	sums := make([]float64, 100)
	for i := range sums {
		sums[i] = float64(i + 1)
	}
	cfg := utils.ClassifyConfig{Method: "percentile", Percentile: 0.9}

	thr, err := Threshold(sums, cfg)
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	disturbed := 0
	for _, s := range sums {
		if Label(s, thr) == models.CategoryDisturbed {
			disturbed++
		}
	}
	if disturbed != 10 {
		t.Fatalf("labeled %d disturbed (threshold %f), want 10", disturbed, thr)
	}
}

func TestThresholdOrderIndependent(t *testing.T) {
	cfg := utils.ClassifyConfig{Method: "percentile", Percentile: 0.9}
	asc := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	shuffled := []float64{7, 1, 10, 3, 9, 5, 2, 8, 4, 6}

	a, err := Threshold(asc, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Threshold(shuffled, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("threshold depends on input order: %f vs %f", a, b)
	}
	// The input itself must not have been reordered.
	if shuffled[0] != 7 || shuffled[9] != 6 {
		t.Fatal("Threshold mutated its input")
	}
}

func TestFixedThreshold(t *testing.T) {
	cfg := utils.ClassifyConfig{Method: "fixed", FixedThreshold: 12.5}
	thr, err := Threshold(nil, cfg)
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if thr != 12.5 {
		t.Fatalf("threshold = %f, want 12.5", thr)
	}
	if Label(12.5, thr) != models.CategoryQuiet {
		t.Fatal("sum equal to the threshold must stay quiet")
	}
	if Label(12.6, thr) != models.CategoryDisturbed {
		t.Fatal("sum above the threshold must be disturbed")
	}
}

func TestThresholdErrors(t *testing.T) {
	cases := []struct {
		name string
		sums []float64
		cfg  utils.ClassifyConfig
	}{
		{"empty percentile batch", nil, utils.ClassifyConfig{Method: "percentile", Percentile: 0.9}},
		{"percentile out of range", []float64{1}, utils.ClassifyConfig{Method: "percentile", Percentile: 1}},
		{"unknown method", []float64{1}, utils.ClassifyConfig{Method: "median"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Threshold(tc.sums, tc.cfg); !errors.Is(err, models.ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}
