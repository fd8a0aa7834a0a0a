package contacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/match"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a loaded snapshot stays valid.
const DefaultTTL = 5 * time.Minute

// maxCandidates caps ranked name-lookup results.
const maxCandidates = 5

// Directory caches the address book and serves lookups from the cached
// snapshot. The whole snapshot expires atomically after the TTL; the
// first call after expiry reloads synchronously, with concurrent callers
// collapsed into a single fetch. A failed reload keeps the previous
// snapshot so lookups can still serve stale best-effort results.
type Directory struct {
	loader Loader
	ttl    time.Duration
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	snapshot []Contact
	loadedAt time.Time
}

// NewDirectory creates a directory over loader. A ttl of zero selects
// DefaultTTL.
func NewDirectory(loader Loader, ttl time.Duration, b *bus.Bus, logger *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		loader: loader,
		ttl:    ttl,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// contacts returns the current snapshot, reloading first if it has
// expired. On reload failure it returns the stale snapshot (when one
// exists) together with an *UnavailableError.
func (d *Directory) contacts(ctx context.Context) ([]Contact, error) {
	d.mu.RLock()
	snap, loadedAt := d.snapshot, d.loadedAt
	d.mu.RUnlock()
	if !loadedAt.IsZero() && d.now().Sub(loadedAt) <= d.ttl {
		return snap, nil
	}

	_, err, _ := d.group.Do("reload", func() (any, error) {
		// A concurrent caller may have finished the reload already.
		d.mu.RLock()
		fresh := !d.loadedAt.IsZero() && d.now().Sub(d.loadedAt) <= d.ttl
		d.mu.RUnlock()
		if fresh {
			return nil, nil
		}

		loaded, err := d.loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.snapshot = loaded
		d.loadedAt = d.now()
		d.mu.Unlock()
		d.bus.Publish(bus.Event{Kind: bus.KindDirectoryReloaded, Timestamp: time.Now(), Payload: len(loaded)})
		d.logger.Info("contact directory reloaded", zap.Int("contacts", len(loaded)))
		return nil, nil
	})
	if err != nil {
		d.mu.RLock()
		stale, hadAny := d.snapshot, d.snapshot != nil
		d.mu.RUnlock()
		d.logger.Warn("contact directory reload failed", zap.Error(err), zap.Bool("stale_available", hadAny))
		d.bus.Publish(bus.Event{Kind: bus.KindDirectoryStale, Timestamp: time.Now(), Payload: err.Error()})
		if hadAny {
			return stale, &UnavailableError{Err: err}
		}
		return nil, &UnavailableError{Err: err}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot, nil
}

// LookupByName returns up to five contacts ranked by name similarity.
// When the directory is unreachable the ranked results come from the
// previous snapshot and err is an *UnavailableError.
func (d *Directory) LookupByName(ctx context.Context, name string) ([]Candidate, error) {
	snap, err := d.contacts(ctx)
	if snap == nil && err != nil {
		return nil, err
	}

	var ranked []Candidate
	for _, c := range snap {
		if score := match.Score(name, c.Name); score > 0 {
			ranked = append(ranked, Candidate{Contact: c, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	return ranked, err
}

// LookupByHandle returns the contact owning addr, or nil when no contact
// matches. Stale-snapshot behavior matches LookupByName.
func (d *Directory) LookupByHandle(ctx context.Context, addr string) (*Contact, error) {
	snap, err := d.contacts(ctx)
	if snap == nil && err != nil {
		return nil, err
	}
	for i := range snap {
		if snap[i].HasHandle(addr) {
			return &snap[i], err
		}
	}
	return nil, err
}

// Refresh discards the TTL and reloads the directory; used by the
// diagnostics probe. The previous snapshot is kept for stale serving
// when the reload fails.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.loadedAt = time.Time{}
	d.mu.Unlock()
	_, err := d.contacts(ctx)
	return err
}
