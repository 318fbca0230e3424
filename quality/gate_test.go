package quality

import (
	"reflect"
	"testing"
	"time"

	"mstid-music/models"
	"mstid-music/utils"
)

func noonGrid(nt int) *models.Grid {
	// Times straddling local noon at the prime meridian.
	times := make([]time.Time, nt)
	start := time.Date(2016, 6, 21, 11, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 2 * time.Minute)
	}
	return &models.Grid{Times: times, Coverage: 1}
}

func TestGateAllChecksPass(t *testing.T) {
	site := &utils.RadarSite{Code: "tst", LatDeg: 0, LonDeg: 0}
	cfg := utils.QualityConfig{MinUptimeMin: 110, RTIFraction: 0.5, TerminatorFraction: 0.9}

	rep := Gate(noonGrid(60), 115, site, cfg)
	if !rep.Good {
		t.Fatalf("expected a good period, failed checks: %v", rep.FailedChecks)
	}
	if rep.Coverage != 1 || rep.UptimeMin != 115 {
		t.Fatalf("metrics not carried through: %+v", rep)
	}
	if rep.DaylightFrac != 1 {
		t.Fatalf("equator around noon should be fully sunlit, got %f", rep.DaylightFrac)
	}
}

func TestGateRecordsEveryFailedCheck(t *testing.T) {
	site := &utils.RadarSite{Code: "tst", LatDeg: 0, LonDeg: 0}
	cfg := utils.QualityConfig{MinUptimeMin: 110, RTIFraction: 0.5, TerminatorFraction: 0.9}

	// Uptime just below threshold; everything else passes.
	rep := Gate(noonGrid(60), 100, site, cfg)
	if rep.Good {
		t.Fatal("expected rejection")
	}
	if !reflect.DeepEqual(rep.FailedChecks, []string{CheckUptime}) {
		t.Fatalf("failed checks = %v, want [uptime] only", rep.FailedChecks)
	}

	// All three fail; every reason is recorded, none short-circuits.
	g := noonGrid(60)
	g.Coverage = 0.1
	for i := range g.Times {
		g.Times[i] = g.Times[i].Add(12 * time.Hour) // local midnight
	}
	rep = Gate(g, 0, site, cfg)
	want := []string{CheckUptime, CheckCoverage, CheckDaylight}
	if !reflect.DeepEqual(rep.FailedChecks, want) {
		t.Fatalf("failed checks = %v, want %v", rep.FailedChecks, want)
	}
}

func TestSolarZenith(t *testing.T) {
	// June solstice, local noon at the equator: sun near zenith.
	noon := time.Date(2016, 6, 21, 12, 0, 0, 0, time.UTC)
	if z := SolarZenithDeg(noon, 0, 0); z > 25 {
		t.Fatalf("noon zenith = %f, want near overhead", z)
	}
	midnight := noon.Add(12 * time.Hour)
	if z := SolarZenithDeg(midnight, 0, 0); z < 90 {
		t.Fatalf("midnight zenith = %f, want below the horizon", z)
	}
}

func TestDaylightFractionEmpty(t *testing.T) {
	if f := DaylightFraction(nil, 0, 0); f != 0 {
		t.Fatalf("empty time axis should give 0, got %f", f)
	}
}
