package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mstid-music/models"
)

// ─── Radar site table ───────────────────────────────────────────────────

// RadarSite describes the hardware geometry of one radar, enough to build
// the field-of-view mapping and the terminator check.
type RadarSite struct {
	Code         string  `yaml:"-"`
	LatDeg       float64 `yaml:"lat_deg"`
	LonDeg       float64 `yaml:"lon_deg"`
	BoresightDeg float64 `yaml:"boresight_deg"`
	BeamSepDeg   float64 `yaml:"beam_sep_deg"`
	NBeams       int     `yaml:"nbeams"`
	NGates       int     `yaml:"ngates"`
	FirstRangeKm float64 `yaml:"first_range_km"`
	GateLenKm    float64 `yaml:"gate_len_km"`
	StepSec      float64 `yaml:"step_sec"` // native integration period
	MLTOffsetHr  float64 `yaml:"mlt_offset_hr"`
}

// ─── Stage configs ──────────────────────────────────────────────────────

type GridConfig struct {
	FOVModel        string  `yaml:"fov_model"` // "GS" or "IS"
	GScat           int     `yaml:"gscat"`     // 0 iono, 1 ground, 3 all
	BeamLimits      [2]int  `yaml:"beam_limits"`
	GateLimits      [2]int  `yaml:"gate_limits"`
	BadRangeKm      float64 `yaml:"bad_range_km"` // GS mode only
	VirtualHeightKm float64 `yaml:"virtual_height_km"`
	Interp          string  `yaml:"interp"` // "nearest" or "linear"
	MaxGapSec       float64 `yaml:"max_gap_sec"`
	Taper           bool    `yaml:"taper"`
}

type QualityConfig struct {
	MinUptimeMin       float64 `yaml:"min_uptime_min"`
	RTIFraction        float64 `yaml:"rti_fraction"`
	TerminatorFraction float64 `yaml:"terminator_fraction"`
}

type SpectralConfig struct {
	BandLoHz       float64 `yaml:"band_lo_hz"`
	BandHiHz       float64 `yaml:"band_hi_hz"`
	FilterCutoffHz float64 `yaml:"filter_cutoff_hz"` // 0 disables the pre-filter
	FilterNumtaps  int     `yaml:"filter_numtaps"`
}

type ClassifyConfig struct {
	Method         string  `yaml:"method"` // "percentile" or "fixed"
	Percentile     float64 `yaml:"percentile"`
	FixedThreshold float64 `yaml:"fixed_threshold"`
}

type MusicConfig struct {
	MinChannels  int     `yaml:"min_channels"`
	NumSignals   int     `yaml:"num_signals"` // 0 = eigenvalue-gap estimate
	NumFreqs     int     `yaml:"num_freqs"`   // in-band bins to scan; 0 = dominant only
	KxMaxRadKm   float64 `yaml:"kxmax_rad_km"`
	KyMaxRadKm   float64 `yaml:"kymax_rad_km"`
	NK           int     `yaml:"nk"`
	PeakFraction float64 `yaml:"peak_fraction"`
	LambdaMinKm  float64 `yaml:"lambda_min_km"`
	LambdaMaxKm  float64 `yaml:"lambda_max_km"`
	FreqAvgBins  int     `yaml:"freq_avg_bins"`
}

type BatchConfig struct {
	NProcs         int     `yaml:"nprocs"`
	WindowHours    float64 `yaml:"window_hours"`
	CategoryFilter string  `yaml:"category_filter"` // restricts fft->music
}

// PipelineConfig is the top-level structure for pipeline.yaml.
type PipelineConfig struct {
	Radars   map[string]*RadarSite `yaml:"radars"`
	Grid     GridConfig            `yaml:"grid"`
	Quality  QualityConfig         `yaml:"quality"`
	Spectral SpectralConfig        `yaml:"spectral"`
	Classify ClassifyConfig        `yaml:"classify"`
	Music    MusicConfig           `yaml:"music"`
	Batch    BatchConfig           `yaml:"batch"`
}

// ─── Storage / adapter config ───────────────────────────────────────────

type BusConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type APIConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// StorageConfig is the top-level structure for storage.yaml.
type StorageConfig struct {
	CatalogDir string    `yaml:"catalog_dir"`
	ArrayDir   string    `yaml:"array_dir"`
	SampleDir  string    `yaml:"sample_dir"` // raw scan CSVs
	ExportDir  string    `yaml:"export_dir"`
	Bus        BusConfig `yaml:"bus"`
	API        APIConfig `yaml:"api"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadPipelineConfig reads, parses and validates pipeline.yaml.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	for code, site := range cfg.Radars {
		site.Code = code
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorageConfig reads and parses storage.yaml.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg StorageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	if cfg.CatalogDir == "" || cfg.ArrayDir == "" {
		return nil, fmt.Errorf("%w: catalog_dir and array_dir are required", models.ErrConfig)
	}
	return &cfg, nil
}

// Validate fails fast on parameter combinations that indicate a caller
// mistake rather than a per-event condition.
func (c *PipelineConfig) Validate() error {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: %s", models.ErrConfig, fmt.Sprintf(format, a...))
	}

	if len(c.Radars) == 0 {
		return bad("no radars configured")
	}
	for code, s := range c.Radars {
		if s.NBeams <= 0 || s.NGates <= 0 {
			return bad("radar %s: nbeams/ngates must be positive", code)
		}
		if s.StepSec <= 0 || s.GateLenKm <= 0 {
			return bad("radar %s: step_sec and gate_len_km must be positive", code)
		}
	}

	switch c.Grid.FOVModel {
	case "GS", "IS":
	default:
		return bad("fov_model %q (want GS or IS)", c.Grid.FOVModel)
	}
	switch c.Grid.GScat {
	case 0, 1, 3:
	default:
		return bad("gscat %d (want 0, 1 or 3)", c.Grid.GScat)
	}
	if c.Grid.BeamLimits[0] > c.Grid.BeamLimits[1] || c.Grid.GateLimits[0] > c.Grid.GateLimits[1] {
		return bad("inverted beam/gate limits")
	}
	if c.Grid.BadRangeKm < 0 {
		return bad("bad_range_km %.1f < 0", c.Grid.BadRangeKm)
	}
	switch c.Grid.Interp {
	case "nearest", "linear":
	default:
		return bad("interp %q (want nearest or linear)", c.Grid.Interp)
	}

	for name, v := range map[string]float64{
		"rti_fraction":        c.Quality.RTIFraction,
		"terminator_fraction": c.Quality.TerminatorFraction,
	} {
		if v < 0 || v > 1 {
			return bad("%s %.3f outside [0, 1]", name, v)
		}
	}

	if c.Spectral.BandLoHz < 0 || c.Spectral.BandHiHz <= c.Spectral.BandLoHz {
		return bad("spectral band [%.2e, %.2e] is empty or inverted",
			c.Spectral.BandLoHz, c.Spectral.BandHiHz)
	}
	if c.Spectral.FilterCutoffHz > 0 && c.Spectral.FilterNumtaps < 3 {
		return bad("filter_numtaps %d < 3", c.Spectral.FilterNumtaps)
	}

	switch c.Classify.Method {
	case "percentile":
		if c.Classify.Percentile <= 0 || c.Classify.Percentile >= 1 {
			return bad("percentile %.3f outside (0, 1)", c.Classify.Percentile)
		}
	case "fixed":
	default:
		return bad("classify method %q (want percentile or fixed)", c.Classify.Method)
	}

	if c.Music.KxMaxRadKm <= 0 || c.Music.KyMaxRadKm <= 0 {
		return bad("kxmax_rad_km and kymax_rad_km must be positive")
	}
	if c.Music.NumFreqs < 0 {
		return bad("num_freqs %d < 0", c.Music.NumFreqs)
	}
	if c.Music.NK < 3 {
		return bad("nk %d < 3", c.Music.NK)
	}
	if c.Music.MinChannels < 3 {
		return bad("min_channels %d < 3", c.Music.MinChannels)
	}
	if c.Music.LambdaMinKm <= 0 || c.Music.LambdaMaxKm <= c.Music.LambdaMinKm {
		return bad("lambda plausibility band [%.0f, %.0f] is empty or inverted",
			c.Music.LambdaMinKm, c.Music.LambdaMaxKm)
	}

	if c.Batch.NProcs < 1 {
		return bad("nprocs %d < 1", c.Batch.NProcs)
	}
	if c.Batch.WindowHours <= 0 {
		return bad("window_hours must be positive")
	}
	return nil
}
