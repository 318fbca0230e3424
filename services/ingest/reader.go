package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mstid-music/models"
	"mstid-music/utils"
)

// SampleSource is the raw-reader collaborator: it delivers calibrated
// beam/gate/time backscatter samples for one event window.
type SampleSource interface {
	Read(ctx context.Context, radar string, start, end time.Time) ([]models.Sample, error)
}

// FileSource reads scan CSVs from a directory, one file per radar and UT
// day, named <radar>_YYYYMMDD.csv with rows
//
//	unix_sec,beam,gate,power_db,velocity,gscat
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource { return &FileSource{Dir: dir} }

func (fs *FileSource) Read(ctx context.Context, radar string, start, end time.Time) ([]models.Sample, error) {
	var samples []models.Sample

	for day := start.UTC().Truncate(24 * time.Hour); day.Before(end); day = day.Add(24 * time.Hour) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(fs.Dir, fmt.Sprintf("%s_%s.csv", radar, day.Format("20060102")))
		part, err := readScanFile(path, start, end)
		if err != nil {
			if os.IsNotExist(err) {
				continue // a missing day is just no data, not an I/O failure
			}
			return nil, fmt.Errorf("%w: read %s: %v", models.ErrStorage, path, err)
		}
		samples = append(samples, part...)
	}

	utils.L().Debug("file source: %s %s..%s -> %d samples",
		radar, start.Format("15:04"), end.Format("15:04"), len(samples))
	return samples, nil
}

func readScanFile(path string, start, end time.Time) ([]models.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var out []models.Sample
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line+1, err)
		}
		line++
		if line == 1 && rec[0] == "unix_sec" {
			continue // header row
		}

		sec, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp: %v", line, err)
		}
		t := time.Unix(sec, 0).UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}

		beam, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad beam: %v", line, err)
		}
		gate, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad gate: %v", line, err)
		}
		pwr, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad power: %v", line, err)
		}
		vel, _ := strconv.ParseFloat(rec[4], 64)
		gsc, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad gscat flag: %v", line, err)
		}

		out = append(out, models.Sample{
			Time:     t,
			Beam:     beam,
			Gate:     gate,
			PowerDB:  pwr,
			Velocity: vel,
			Scatter:  models.ScatterType(gsc),
		})
	}
	return out, nil
}

// UptimeMinutes counts the whole minutes inside [start, end) covered by at
// least one scan, where each sample credits its full integration span
// [t, t+step). A radar scanning every 80 s therefore covers every minute
// of a healthy window, not just the minutes its timestamps land in. This
// is the operational-uptime metric the quality gate checks against its
// minute threshold.
func UptimeMinutes(samples []models.Sample, start, end time.Time, stepSec float64) float64 {
	step := int64(stepSec)
	if step < 1 {
		step = 1
	}
	endSec := end.Unix()
	seen := make(map[int64]struct{})
	for _, s := range samples {
		if s.Time.Before(start) || !s.Time.Before(end) {
			continue
		}
		t0 := s.Time.Unix()
		t1 := t0 + step
		if t1 > endSec {
			t1 = endSec
		}
		for m := t0 / 60; m*60 < t1; m++ {
			seen[m] = struct{}{}
		}
	}
	return float64(len(seen))
}
