package ingest

import "mstid-music/utils"

func testSite() utils.RadarSite {
	return utils.RadarSite{
		Code: "tst", LatDeg: 37.1, LonDeg: -77.95,
		BoresightDeg: -40, BeamSepDeg: 3.24,
		NBeams: 4, NGates: 4,
		FirstRangeKm: 180, GateLenKm: 45, StepSec: 120,
	}
}
