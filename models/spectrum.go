package models

// Spectrum holds the temporal Fourier transform of a Grid: one complex
// spectrum per valid beam-gate cell plus integrated power-spectral-density
// summaries. The frequency axis is determined solely by the time-axis
// length and sampling interval of the source grid.
type Spectrum struct {
	// Cells[b][g] is the one-sided spectrum of that cell, nil where the
	// cell is invalid. Length == len(Freqs) for valid cells.
	Cells [][][]complex128
	Valid [][]bool

	Freqs []float64 // Hz, ascending from 0 (DC) to Nyquist

	// BandPower[b][g] is squared-magnitude spectral density integrated over
	// the configured analysis band, for valid cells only.
	BandPower [][]float64

	// Aggregates of BandPower across valid cells.
	Sum  float64
	Mean float64
	Max  float64

	NumValid int
}

// NumFreqs returns the length of the frequency axis.
func (s *Spectrum) NumFreqs() int { return len(s.Freqs) }

// BinFor returns the index of the frequency bin nearest f, clamped to the
// axis range.
func (s *Spectrum) BinFor(f float64) int {
	if len(s.Freqs) < 2 {
		return 0
	}
	df := s.Freqs[1] - s.Freqs[0]
	i := int(f/df + 0.5)
	if i < 0 {
		i = 0
	}
	if i >= len(s.Freqs) {
		i = len(s.Freqs) - 1
	}
	return i
}
