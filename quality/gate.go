package quality

import (
	"mstid-music/models"
	"mstid-music/utils"
)

// Check names recorded on rejection, in evaluation order.
const (
	CheckUptime   = "uptime"
	CheckCoverage = "coverage"
	CheckDaylight = "daylight"
)

// Gate evaluates a built grid against the quality thresholds. Every check
// runs and is recorded independently, so rejection reasons accumulate
// instead of short-circuiting. The event is never dropped: rejected
// windows keep their metrics for audit.
func Gate(grid *models.Grid, uptimeMin float64, site *utils.RadarSite, cfg utils.QualityConfig) models.QualityReport {
	rep := models.QualityReport{
		Coverage:  grid.Coverage,
		UptimeMin: uptimeMin,
	}
	rep.DaylightFrac = DaylightFraction(grid.Times, site.LatDeg, site.LonDeg)

	if uptimeMin < cfg.MinUptimeMin {
		rep.FailedChecks = append(rep.FailedChecks, CheckUptime)
	}
	if grid.Coverage < cfg.RTIFraction {
		rep.FailedChecks = append(rep.FailedChecks, CheckCoverage)
	}
	if rep.DaylightFrac < cfg.TerminatorFraction {
		rep.FailedChecks = append(rep.FailedChecks, CheckDaylight)
	}

	rep.Good = len(rep.FailedChecks) == 0
	if !rep.Good {
		utils.L().Debug("quality gate rejected %s window: failed=%v uptime=%.0f cov=%.3f day=%.2f",
			site.Code, rep.FailedChecks, uptimeMin, grid.Coverage, rep.DaylightFrac)
	}
	return rep
}
