package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mstid-music/models"
)

// Stage names used as array-store keys.
const (
	StageGrid     = "rti_interp"
	StageSpectrum = "fft"
)

// ArrayStore is the large-array collaborator: per-event persisted grids
// and spectra, keyed by (event identity, stage name). Each event's arrays
// live at a distinct location, so there is no cross-event write contention.
type ArrayStore interface {
	WriteGrid(id string, g *models.Grid) error
	ReadGrid(id string) (*models.Grid, error)
	WriteSpectrum(id string, s *models.Spectrum) error
	ReadSpectrum(id string) (*models.Spectrum, error)
	Exists(id, stage string) bool
}

// FileArrays stores each array as a raw little-endian binary file with a
// YAML axis-metadata sidecar, under <dir>/<event id>/<stage>.{f64,yaml}.
// Writes go through temp files + rename, so a stage's output is either
// fully present or absent.
type FileArrays struct {
	dir string
}

func NewFileArrays(dir string) (*FileArrays, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create array dir: %v", models.ErrStorage, err)
	}
	return &FileArrays{dir: dir}, nil
}

func (fa *FileArrays) paths(id, stage string) (bin, meta string) {
	base := filepath.Join(fa.dir, id)
	return filepath.Join(base, stage+".f64"), filepath.Join(base, stage+".yaml")
}

func (fa *FileArrays) Exists(id, stage string) bool {
	bin, meta := fa.paths(id, stage)
	if _, err := os.Stat(bin); err != nil {
		return false
	}
	_, err := os.Stat(meta)
	return err == nil
}

// ─── Grid ───────────────────────────────────────────────────────────────

type gridMeta struct {
	Beams    []int     `yaml:"beams"`
	SlantKm  []float64 `yaml:"slant_km"`
	TimesSec []int64   `yaml:"times_sec"`
	StepSec  float64   `yaml:"step_sec"`
	Coverage float64   `yaml:"coverage"`
	HasTaper bool      `yaml:"has_taper"`
}

func (fa *FileArrays) WriteGrid(id string, g *models.Grid) error {
	nb, ng, nt := g.NumBeams(), g.NumGates(), g.NumTimes()

	meta := gridMeta{
		Beams:    g.Beams,
		SlantKm:  g.SlantKm,
		TimesSec: make([]int64, nt),
		StepSec:  g.StepSec,
		Coverage: g.Coverage,
		HasTaper: g.Taper != nil,
	}
	for i, t := range g.Times {
		meta.TimesSec[i] = t.Unix()
	}

	return fa.writeStage(id, StageGrid, meta, func(w *bufio.Writer) error {
		for b := 0; b < nb; b++ {
			for gt := 0; gt < ng; gt++ {
				if err := binary.Write(w, binary.LittleEndian, g.Power[b][gt]); err != nil {
					return err
				}
			}
		}
		for b := 0; b < nb; b++ {
			for gt := 0; gt < ng; gt++ {
				if err := writeBools(w, g.Valid[b][gt]); err != nil {
					return err
				}
			}
		}
		for _, plane := range [][][]float64{g.LatDeg, g.LonDeg, g.XKm, g.YKm} {
			for b := 0; b < nb; b++ {
				if err := binary.Write(w, binary.LittleEndian, plane[b]); err != nil {
					return err
				}
			}
		}
		for b := 0; b < nb; b++ {
			if err := writeBools(w, g.FootOK[b]); err != nil {
				return err
			}
		}
		if g.Taper != nil {
			for b := 0; b < nb; b++ {
				if err := binary.Write(w, binary.LittleEndian, g.Taper[b]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (fa *FileArrays) ReadGrid(id string) (*models.Grid, error) {
	var meta gridMeta
	r, err := fa.openStage(id, StageGrid, &meta)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	nb, ng, nt := len(meta.Beams), len(meta.SlantKm), len(meta.TimesSec)
	g := &models.Grid{
		Power:    alloc3(nb, ng, nt),
		Valid:    alloc3b(nb, ng, nt),
		Beams:    meta.Beams,
		SlantKm:  meta.SlantKm,
		Times:    make([]time.Time, nt),
		StepSec:  meta.StepSec,
		LatDeg:   alloc2(nb, ng),
		LonDeg:   alloc2(nb, ng),
		FootOK:   alloc2b(nb, ng),
		XKm:      alloc2(nb, ng),
		YKm:      alloc2(nb, ng),
		Coverage: meta.Coverage,
	}
	for i, s := range meta.TimesSec {
		g.Times[i] = time.Unix(s, 0).UTC()
	}

	br := bufio.NewReader(r)
	fail := func(err error) (*models.Grid, error) {
		return nil, fmt.Errorf("%w: read grid %s: %v", models.ErrStorage, id, err)
	}
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			if err := binary.Read(br, binary.LittleEndian, g.Power[b][gt]); err != nil {
				return fail(err)
			}
		}
	}
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			if err := readBools(br, g.Valid[b][gt]); err != nil {
				return fail(err)
			}
		}
	}
	for _, plane := range [][][]float64{g.LatDeg, g.LonDeg, g.XKm, g.YKm} {
		for b := 0; b < nb; b++ {
			if err := binary.Read(br, binary.LittleEndian, plane[b]); err != nil {
				return fail(err)
			}
		}
	}
	for b := 0; b < nb; b++ {
		if err := readBools(br, g.FootOK[b]); err != nil {
			return fail(err)
		}
	}
	if meta.HasTaper {
		g.Taper = alloc2(nb, ng)
		for b := 0; b < nb; b++ {
			if err := binary.Read(br, binary.LittleEndian, g.Taper[b]); err != nil {
				return fail(err)
			}
		}
	}
	return g, nil
}

// ─── Spectrum ───────────────────────────────────────────────────────────

type spectrumMeta struct {
	NumBeams int       `yaml:"num_beams"`
	NumGates int       `yaml:"num_gates"`
	Freqs    []float64 `yaml:"freqs_hz"`
	Sum      float64   `yaml:"sum"`
	Mean     float64   `yaml:"mean"`
	Max      float64   `yaml:"max"`
	NumValid int       `yaml:"num_valid"`
}

func (fa *FileArrays) WriteSpectrum(id string, s *models.Spectrum) error {
	nb := len(s.Cells)
	ng := 0
	if nb > 0 {
		ng = len(s.Cells[0])
	}
	meta := spectrumMeta{
		NumBeams: nb, NumGates: ng, Freqs: s.Freqs,
		Sum: s.Sum, Mean: s.Mean, Max: s.Max, NumValid: s.NumValid,
	}

	return fa.writeStage(id, StageSpectrum, meta, func(w *bufio.Writer) error {
		for b := 0; b < nb; b++ {
			if err := writeBools(w, s.Valid[b]); err != nil {
				return err
			}
		}
		for b := 0; b < nb; b++ {
			if err := binary.Write(w, binary.LittleEndian, s.BandPower[b]); err != nil {
				return err
			}
		}
		// Valid cells only, in axis order, re/im interleaved.
		for b := 0; b < nb; b++ {
			for gt := 0; gt < ng; gt++ {
				if !s.Valid[b][gt] {
					continue
				}
				for _, c := range s.Cells[b][gt] {
					if err := binary.Write(w, binary.LittleEndian, [2]float64{real(c), imag(c)}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (fa *FileArrays) ReadSpectrum(id string) (*models.Spectrum, error) {
	var meta spectrumMeta
	r, err := fa.openStage(id, StageSpectrum, &meta)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	nb, ng, nf := meta.NumBeams, meta.NumGates, len(meta.Freqs)
	s := &models.Spectrum{
		Cells:     make([][][]complex128, nb),
		Valid:     alloc2b(nb, ng),
		BandPower: alloc2(nb, ng),
		Freqs:     meta.Freqs,
		Sum:       meta.Sum,
		Mean:      meta.Mean,
		Max:       meta.Max,
		NumValid:  meta.NumValid,
	}
	for b := range s.Cells {
		s.Cells[b] = make([][]complex128, ng)
	}

	br := bufio.NewReader(r)
	fail := func(err error) (*models.Spectrum, error) {
		return nil, fmt.Errorf("%w: read spectrum %s: %v", models.ErrStorage, id, err)
	}
	for b := 0; b < nb; b++ {
		if err := readBools(br, s.Valid[b]); err != nil {
			return fail(err)
		}
	}
	for b := 0; b < nb; b++ {
		if err := binary.Read(br, binary.LittleEndian, s.BandPower[b]); err != nil {
			return fail(err)
		}
	}
	pair := make([]float64, 2*nf)
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			if !s.Valid[b][gt] {
				continue
			}
			if err := binary.Read(br, binary.LittleEndian, pair); err != nil {
				return fail(err)
			}
			cell := make([]complex128, nf)
			for i := range cell {
				cell[i] = complex(pair[2*i], pair[2*i+1])
			}
			s.Cells[b][gt] = cell
		}
	}
	return s, nil
}

// ─── shared plumbing ────────────────────────────────────────────────────

// writeStage writes the binary payload and YAML sidecar through temp
// files, renaming both only after the payload is fully flushed.
func (fa *FileArrays) writeStage(id, stage string, meta any, payload func(*bufio.Writer) error) error {
	bin, metaPath := fa.paths(id, stage)
	if err := os.MkdirAll(filepath.Dir(bin), 0755); err != nil {
		return fmt.Errorf("%w: create event dir %s: %v", models.ErrStorage, id, err)
	}

	tmp := bin + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrStorage, tmp, err)
	}
	w := bufio.NewWriter(f)
	if err := payload(w); err == nil {
		err = w.Flush()
	} else {
		_ = w.Flush()
	}
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write %s/%s: %v", models.ErrStorage, id, stage, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close %s: %v", models.ErrStorage, tmp, err)
	}

	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: encode metadata %s/%s: %v", models.ErrStorage, id, stage, err)
	}
	metaTmp := metaPath + ".tmp"
	if err := os.WriteFile(metaTmp, metaBytes, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", models.ErrStorage, metaTmp, err)
	}

	if err := os.Rename(tmp, bin); err != nil {
		return fmt.Errorf("%w: commit %s: %v", models.ErrStorage, bin, err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		return fmt.Errorf("%w: commit %s: %v", models.ErrStorage, metaPath, err)
	}
	return nil
}

func (fa *FileArrays) openStage(id, stage string, meta any) (*os.File, error) {
	bin, metaPath := fa.paths(id, stage)
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata %s/%s: %v", models.ErrStorage, id, stage, err)
	}
	if err := yaml.Unmarshal(metaBytes, meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata %s/%s: %v", models.ErrStorage, id, stage, err)
	}
	f, err := os.Open(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrStorage, bin, err)
	}
	return f, nil
}

func writeBools(w *bufio.Writer, bs []bool) error {
	for _, b := range bs {
		var v byte
		if b {
			v = 1
		}
		if err := w.WriteByte(v); err != nil {
			return err
		}
	}
	return nil
}

func readBools(r *bufio.Reader, bs []bool) error {
	for i := range bs {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		bs[i] = b == 1
	}
	return nil
}

func alloc2(a, b int) [][]float64 {
	out := make([][]float64, a)
	for i := range out {
		out[i] = make([]float64, b)
	}
	return out
}

func alloc2b(a, b int) [][]bool {
	out := make([][]bool, a)
	for i := range out {
		out[i] = make([]bool, b)
	}
	return out
}

func alloc3(a, b, c int) [][][]float64 {
	out := make([][][]float64, a)
	for i := range out {
		out[i] = alloc2(b, c)
	}
	return out
}

func alloc3b(a, b, c int) [][][]bool {
	out := make([][][]bool, a)
	for i := range out {
		out[i] = alloc2b(b, c)
	}
	return out
}
