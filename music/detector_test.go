package music

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"mstid-music/models"
	"mstid-music/spectral"
	"mstid-music/utils"
)

func detectorCfg() utils.MusicConfig {
	return utils.MusicConfig{
		MinChannels:  8,
		NumSignals:   1,
		KxMaxRadKm:   0.05,
		KyMaxRadKm:   0.05,
		NK:           101,
		PeakFraction: 0.3,
		LambdaMinKm:  100,
		LambdaMaxKm:  3000,
	}
}

// waveGrid synthesizes a plane wave cos(kx*x + ky*y - w*t) over an
// nb x ng array of cells spaced 50 km apart, 100 samples at 80 s.
func waveGrid(nb, ng int, kx, ky, freqHz float64) *models.Grid {
	const (
		nt      = 100
		stepSec = 80.0
		spacing = 50.0
	)
	g := &models.Grid{
		Power:   make([][][]float64, nb),
		Valid:   make([][][]bool, nb),
		Beams:   make([]int, nb),
		SlantKm: make([]float64, ng),
		Times:   make([]time.Time, nt),
		StepSec: stepSec,
		LatDeg:  make([][]float64, nb),
		LonDeg:  make([][]float64, nb),
		FootOK:  make([][]bool, nb),
		XKm:     make([][]float64, nb),
		YKm:     make([][]float64, nb),
	}
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	for i := range g.Times {
		g.Times[i] = start.Add(time.Duration(float64(i) * stepSec * float64(time.Second)))
	}
	for b := 0; b < nb; b++ {
		g.Beams[b] = b
		g.Power[b] = make([][]float64, ng)
		g.Valid[b] = make([][]bool, ng)
		g.LatDeg[b] = make([]float64, ng)
		g.LonDeg[b] = make([]float64, ng)
		g.FootOK[b] = make([]bool, ng)
		g.XKm[b] = make([]float64, ng)
		g.YKm[b] = make([]float64, ng)
		y := (float64(b) - float64(nb-1)/2) * spacing
		for gt := 0; gt < ng; gt++ {
			x := (float64(gt) - float64(ng-1)/2) * spacing
			g.FootOK[b][gt] = true
			g.XKm[b][gt] = x
			g.YKm[b][gt] = y
			g.Power[b][gt] = make([]float64, nt)
			g.Valid[b][gt] = make([]bool, nt)
			for ti := 0; ti < nt; ti++ {
				phase := kx*x + ky*y - 2*math.Pi*freqHz*float64(ti)*stepSec
				g.Power[b][gt][ti] = 30 + 3*math.Cos(phase)
				g.Valid[b][gt][ti] = true
			}
		}
	}
	g.Coverage = 1
	return g
}

func transform(t *testing.T, g *models.Grid) *models.Spectrum {
	t.Helper()
	sp, err := spectral.Transform(g, utils.SpectralConfig{BandLoHz: 4e-4, BandHiHz: 6e-4})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	return sp
}

func TestDetectRecoversInjectedWave(t *testing.T) {
	// kx and ky sit exactly on the 101-point search grid over +-0.05, and
	// 5e-4 Hz is exactly bin 4 of the frequency axis.
	const (
		kx   = 0.003
		ky   = 0.004
		freq = 5e-4
	)
	g := waveGrid(8, 8, kx, ky, freq)
	sp := transform(t, g)

	bin := spectral.DominantBin(sp, 4e-4, 6e-4)
	if bin != 4 {
		t.Fatalf("dominant bin = %d, want 4", bin)
	}

	signals, err := NewDetector(detectorCfg()).Detect(g, sp, bin)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(signals) == 0 {
		t.Fatal("no signals detected for a clean injected wave")
	}

	s := signals[0]
	if s.Order != 1 || s.Power != 1 {
		t.Fatalf("top signal order/power = %d/%f, want 1/1", s.Order, s.Power)
	}
	if math.Abs(s.KxRadKm-kx) > 1e-9 || math.Abs(s.KyRadKm-ky) > 1e-9 {
		t.Fatalf("peak at (%f, %f), want (%f, %f)", s.KxRadKm, s.KyRadKm, kx, ky)
	}

	kmag := math.Hypot(kx, ky)
	if math.Abs(s.LambdaKm-2*math.Pi/kmag) > 1e-6 {
		t.Fatalf("lambda = %f, want %f", s.LambdaKm, 2*math.Pi/kmag)
	}
	if math.Abs(s.AzimuthDeg-36.8699) > 0.01 {
		t.Fatalf("azimuth = %f, want 36.87", s.AzimuthDeg)
	}
	if math.Abs(s.FreqHz-freq) > 1e-12 {
		t.Fatalf("freq = %g, want %g", s.FreqHz, freq)
	}
	if math.Abs(s.PeriodMin-1/freq/60) > 1e-9 {
		t.Fatalf("period = %f min, want %f", s.PeriodMin, 1/freq/60)
	}
	wantV := 2 * math.Pi * freq / kmag * 1000
	if math.Abs(s.VelocityMS-wantV) > 1e-6 {
		t.Fatalf("velocity = %f m/s, want %f", s.VelocityMS, wantV)
	}
}

// addWave superimposes a second plane wave onto an existing grid.
func addWave(g *models.Grid, kx, ky, freqHz, amp float64) {
	for b := range g.Power {
		for gt := range g.Power[b] {
			x, y := g.XKm[b][gt], g.YKm[b][gt]
			for ti := range g.Power[b][gt] {
				phase := kx*x + ky*y - 2*math.Pi*freqHz*float64(ti)*g.StepSec
				g.Power[b][gt][ti] += amp * math.Cos(phase)
			}
		}
	}
}

func TestDetectAsymmetricSearchWindow(t *testing.T) {
	// ky = 0.0528 lies beyond a symmetric +-0.05 window but is an exact
	// lattice point of the widened y bound (101 points over +-0.06).
	const (
		kx   = 0.003
		ky   = 0.0528
		freq = 5e-4
	)
	cfg := detectorCfg()
	cfg.KyMaxRadKm = 0.06
	cfg.LambdaMinKm = 50

	g := waveGrid(8, 8, kx, ky, freq)
	sp := transform(t, g)

	signals, err := NewDetector(cfg).Detect(g, sp, 4)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(signals) == 0 {
		t.Fatal("no signals inside the asymmetric window")
	}
	s := signals[0]
	if math.Abs(s.KxRadKm-kx) > 1e-9 || math.Abs(s.KyRadKm-ky) > 1e-9 {
		t.Fatalf("peak at (%f, %f), want (%f, %f)", s.KxRadKm, s.KyRadKm, kx, ky)
	}
}

func TestDetectBinsMergesRankings(t *testing.T) {
	// A strong wave at bin 4 and a weaker one at bin 6. Scanning both
	// bins must yield one list led by the stronger wave, with orders
	// renumbered across the merge.
	g := waveGrid(8, 8, 0.003, 0.004, 5e-4)
	addWave(g, -0.007, 0.002, 7.5e-4, 1.5)
	sp := transform(t, g)

	bins := spectral.TopBins(sp, 4e-4, 8e-4, 2)
	if len(bins) != 2 || bins[0] != 4 || bins[1] != 6 {
		t.Fatalf("TopBins = %v, want [4 6]", bins)
	}

	signals, err := NewDetector(detectorCfg()).DetectBins(g, sp, bins)
	if err != nil {
		t.Fatalf("DetectBins: %v", err)
	}
	if len(signals) < 2 {
		t.Fatalf("got %d signals, want both waves", len(signals))
	}
	if math.Abs(signals[0].KxRadKm-0.003) > 1e-9 || math.Abs(signals[0].KyRadKm-0.004) > 1e-9 {
		t.Fatalf("top signal at (%f, %f), want the stronger wave",
			signals[0].KxRadKm, signals[0].KyRadKm)
	}
	found := false
	for i, s := range signals {
		if s.Order != i+1 {
			t.Fatalf("signal %d has order %d after the merge", i, s.Order)
		}
		if i > 0 && signals[i-1].Power < s.Power {
			t.Fatal("merged list not ordered by descending power")
		}
		if math.Abs(s.KxRadKm+0.007) < 1e-9 && math.Abs(s.KyRadKm-0.002) < 1e-9 {
			found = true
		}
	}
	if !found {
		t.Fatal("weaker wave missing from the merged list")
	}
}

func TestDetectBinsSkipsFailingBin(t *testing.T) {
	g := waveGrid(8, 8, 0.003, 0.004, 5e-4)
	sp := transform(t, g)
	det := NewDetector(detectorCfg())

	// All bins bad: the failure surfaces.
	if _, err := det.DetectBins(g, sp, []int{len(sp.Freqs)}); !errors.Is(err, models.ErrDetectionFailed) {
		t.Fatalf("err = %v, want ErrDetectionFailed", err)
	}
	// One good bin among bad ones: detection still succeeds.
	signals, err := det.DetectBins(g, sp, []int{len(sp.Freqs), 4})
	if err != nil {
		t.Fatalf("DetectBins: %v", err)
	}
	if len(signals) == 0 {
		t.Fatal("good bin produced no signals")
	}
}

func TestDetectSignalInvariants(t *testing.T) {
	g := waveGrid(8, 8, -0.007, 0.002, 5e-4)
	sp := transform(t, g)

	signals, err := NewDetector(detectorCfg()).Detect(g, sp, 4)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i, s := range signals {
		if s.Order != i+1 {
			t.Fatalf("signal %d has order %d", i, s.Order)
		}
		if s.LambdaKm <= 0 || s.PeriodMin <= 0 {
			t.Fatalf("non-positive wavelength or period: %+v", s)
		}
		if s.AzimuthDeg < 0 || s.AzimuthDeg >= 360 {
			t.Fatalf("azimuth %f outside [0, 360)", s.AzimuthDeg)
		}
		if i > 0 && signals[i-1].Power < s.Power {
			t.Fatal("signals not ordered by descending strength")
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	g := waveGrid(8, 8, 0.003, 0.004, 5e-4)
	sp := transform(t, g)
	det := NewDetector(detectorCfg())

	a, err := det.Detect(g, sp, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := det.Detect(g, sp, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("repeated detection on the same input differs")
	}
}

func TestDetectTooFewChannels(t *testing.T) {
	g := waveGrid(2, 2, 0.003, 0.004, 5e-4)
	sp := transform(t, g)

	_, err := NewDetector(detectorCfg()).Detect(g, sp, 4)
	if !errors.Is(err, models.ErrInsufficientChannels) {
		t.Fatalf("err = %v, want ErrInsufficientChannels", err)
	}
}

func TestDetectNoSpectralEnergy(t *testing.T) {
	g := waveGrid(8, 8, 0, 0, 0) // constant field, nothing after demeaning
	sp := transform(t, g)

	signals, err := NewDetector(detectorCfg()).Detect(g, sp, 4)
	if err != nil {
		t.Fatalf("an empty bin is a valid zero-signal outcome, got %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("detected %d signals in a silent grid", len(signals))
	}
}

func TestDetectBadBin(t *testing.T) {
	g := waveGrid(8, 8, 0.003, 0.004, 5e-4)
	sp := transform(t, g)

	if _, err := NewDetector(detectorCfg()).Detect(g, sp, len(sp.Freqs)); !errors.Is(err, models.ErrDetectionFailed) {
		t.Fatalf("err = %v, want ErrDetectionFailed for an out-of-axis bin", err)
	}
}

func TestSignalDim(t *testing.T) {
	sub := &Subspace{Values: []float64{10, 9, 0.1, 0.05}}
	if d := sub.SignalDim(0); d != 2 {
		t.Fatalf("gap estimate = %d, want 2", d)
	}
	if d := sub.SignalDim(3); d != 3 {
		t.Fatalf("fixed dim = %d, want 3", d)
	}
	if d := sub.SignalDim(9); d != 3 {
		t.Fatalf("fixed dim must clamp below the channel count, got %d", d)
	}
}

func TestWavelengthRoundTrip(t *testing.T) {
	for _, lambda := range []float64{100, 500, 1256.6, 3000} {
		k := WavelengthToK(lambda)
		if k <= 0 {
			t.Fatalf("WavelengthToK(%f) = %f", lambda, k)
		}
		if got := KToWavelength(k); math.Abs(got-lambda) > 1e-9 {
			t.Fatalf("round trip %f -> %f", lambda, got)
		}
	}
	if WavelengthToK(0) != 0 || KToWavelength(-1) != 0 {
		t.Fatal("non-positive input must map to 0")
	}
}
