package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mstid-music/models"
)

// ErrNotFound reports a missing catalog document.
var ErrNotFound = errors.New("event not found")

// Filter selects and orders catalog documents. Zero-valued fields match
// everything; pointer fields are equality filters, the time pair is a
// range filter on the window start.
type Filter struct {
	Radar     string
	Level     *models.ProcessLevel
	Category  *models.Category
	GoodOnly  bool
	StartFrom *time.Time
	StartTo   *time.Time

	SortBy string // "start" (default) or "spectral_sum"
	Desc   bool
	Limit  int // 0 = unlimited
}

// Catalog is the event-catalog collaborator: durable per-event documents
// keyed by event identity, with atomic per-document updates.
type Catalog interface {
	Get(id string) (*models.Event, error)
	// Update applies mutate to the stored document and persists the result
	// atomically with respect to other updates of the same event.
	Update(id string, mutate func(*models.Event) error) error
	Query(f Filter) ([]*models.Event, error)
	// BulkInsert stores new event windows, skipping identities that
	// already exist, and returns the number inserted.
	BulkInsert(evs []*models.Event) (int, error)
}

// FileCatalog stores one JSON document per event under a directory,
// writing through a temp file + rename so concurrent readers never see a
// torn document. Per-event mutexes serialize updates to the same identity
// across workers.
type FileCatalog struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileCatalog(dir string) (*FileCatalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create catalog dir: %v", models.ErrStorage, err)
	}
	return &FileCatalog{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (c *FileCatalog) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}

func (c *FileCatalog) lock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

func (c *FileCatalog) Get(id string) (*models.Event, error) {
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: read event %s: %v", models.ErrStorage, id, err)
	}
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: decode event %s: %v", models.ErrStorage, id, err)
	}
	return &ev, nil
}

func (c *FileCatalog) Update(id string, mutate func(*models.Event) error) error {
	l := c.lock(id)
	l.Lock()
	defer l.Unlock()

	ev, err := c.Get(id)
	if err != nil {
		return err
	}
	if err := mutate(ev); err != nil {
		return err
	}
	return c.write(ev)
}

func (c *FileCatalog) write(ev *models.Event) error {
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode event %s: %v", models.ErrStorage, ev.ID(), err)
	}
	final := c.path(ev.ID())
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write event %s: %v", models.ErrStorage, ev.ID(), err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("%w: commit event %s: %v", models.ErrStorage, ev.ID(), err)
	}
	return nil
}

func (c *FileCatalog) BulkInsert(evs []*models.Event) (int, error) {
	inserted := 0
	for _, ev := range evs {
		l := c.lock(ev.ID())
		l.Lock()
		if _, err := os.Stat(c.path(ev.ID())); err == nil {
			l.Unlock()
			continue // existing identity is authoritative
		}
		err := c.write(ev)
		l.Unlock()
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (c *FileCatalog) Query(f Filter) ([]*models.Event, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list catalog: %v", models.ErrStorage, err)
	}

	var out []*models.Event
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ev, err := c.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if matches(ev, f) {
			out = append(out, ev)
		}
	}

	less := func(a, b *models.Event) bool { return a.Start.Before(b.Start) }
	if f.SortBy == "spectral_sum" {
		less = func(a, b *models.Event) bool { return a.SpectralSum < b.SpectralSum }
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(ev *models.Event, f Filter) bool {
	if f.Radar != "" && ev.Radar != f.Radar {
		return false
	}
	if f.Level != nil && ev.Level != *f.Level {
		return false
	}
	if f.Category != nil && ev.Class.Category != *f.Category {
		return false
	}
	if f.GoodOnly && !ev.Quality.Good {
		return false
	}
	if f.StartFrom != nil && ev.Start.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && !ev.Start.Before(*f.StartTo) {
		return false
	}
	return true
}
