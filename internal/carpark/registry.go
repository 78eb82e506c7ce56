package carpark

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"parkwhere_backend/internal/event"
	"parkwhere_backend/internal/geo"
)

var (
	// ErrDuplicateID means a seed snapshot carried the same carpark number
	// twice. Seeding treats this as a fatal precondition violation.
	ErrDuplicateID = errors.New("duplicate carpark number")
	// ErrUnknownID means a patch referenced a carpark number the registry
	// has never seen.
	ErrUnknownID = errors.New("unknown carpark number")
)

// Finder is a proximity source that may live outside the registry, such as
// the rtree-backed index. External sources can block (retrying until
// populated), so they take a context.
type Finder interface {
	FindNearby(ctx context.Context, center geo.Point, radiusKM float64) ([]*Carpark, error)
}

// Registry owns every Carpark for the session. It keeps the insertion-
// ordered sequence for deterministic iteration, a number→carpark map for
// O(1) lookup, the last computed nearby list, the at-most-one interested
// carpark, and the current sort mode.
//
// Registry embeds event.Subject and notifies event.NearbyListUpdate after
// each nearby computation. Field-level changes are notified by the
// individual carparks instead.
//
// A single RWMutex guards all of it. Mutation of a carpark's fields only
// happens on the registry's patch path, so patching and nearby computation
// cannot interleave.
type Registry struct {
	event.Subject

	mu         sync.RWMutex
	all        []*Carpark
	byNo       map[string]*Carpark
	nearby     []*Carpark
	interested *Carpark
	sortField  SortField
	sortOrder  SortOrder
	// Remembered direction of the previously active sort field, restored
	// when the user switches back. See ToggleSort.
	oldSortOrder SortOrder
}

func NewRegistry() *Registry {
	return &Registry{byNo: make(map[string]*Carpark)}
}

// Seed constructs one Carpark per record. It is called once per session
// with the initial full snapshot. A duplicate carpark number aborts the
// seed with ErrDuplicateID.
func (r *Registry) Seed(records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, ok := r.byNo[rec.CarParkNo]; ok {
			return fmt.Errorf("seed registry: %w: %s", ErrDuplicateID, rec.CarParkNo)
		}
		c := rec.newCarpark()
		r.all = append(r.all, c)
		r.byNo[rec.CarParkNo] = c
	}
	return nil
}

// Len returns the number of carparks in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// FindByNo returns the carpark with the given number, or nil. An empty
// number means "no selection" and returns nil without searching; that is a
// legitimate state, not an error.
func (r *Registry) FindByNo(no string) *Carpark {
	if no == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byNo[no]
}

// All returns the carparks in insertion order. The slice is a copy; the
// elements are the live carparks.
func (r *Registry) All() []*Carpark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Carpark(nil), r.all...)
}

// Records snapshots every carpark into wire form, in insertion order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.all))
	for _, c := range r.all {
		out = append(out, RecordOf(c))
	}
	return out
}

// SnapshotRecord copies c into wire form under the registry lock. The
// registry hands out live carparks and the feeds mutate their fields under
// this lock, so reading fields lock-free from another goroutine is a data
// race.
func (r *Registry) SnapshotRecord(c *Carpark) Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RecordOf(c)
}

// SnapshotNearby copies each carpark of a nearby list into wire form,
// with its distance annotation, under the registry lock.
func (r *Registry) SnapshotNearby(list []*Carpark) []NearbyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NearbyRecord, 0, len(list))
	for _, c := range list {
		nr := NearbyRecord{Record: RecordOf(c)}
		if c.DistanceKM != nil {
			d := *c.DistanceKM
			nr.DistanceInKM = &d
		}
		out = append(out, nr)
	}
	return out
}

// ApplyPatch patches a single carpark by number and notifies its
// subscribers when something changed.
func (r *Registry) ApplyPatch(no string, p Patch) error {
	r.mu.Lock()
	c, ok := r.byNo[no]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("apply patch: %w: %s", ErrUnknownID, no)
	}
	changed := c.apply(p)
	r.mu.Unlock()

	if changed {
		c.Notify(c, event.CarparkUpdate)
	}
	return nil
}

// ApplyPatchSnapshot patches every carpark named in records. Records whose
// number is unknown are skipped and the rest still apply: patches are
// independent per carpark, so a partial failure is reported as an
// aggregate error instead of rolling anything back.
func (r *Registry) ApplyPatchSnapshot(records []Record) error {
	r.mu.Lock()
	var failed []error
	var changed []*Carpark
	for _, rec := range records {
		c, ok := r.byNo[rec.CarParkNo]
		if !ok {
			failed = append(failed, fmt.Errorf("%w: %s", ErrUnknownID, rec.CarParkNo))
			continue
		}
		if c.apply(rec.Patch()) {
			changed = append(changed, c)
		}
	}
	r.mu.Unlock()

	for _, c := range changed {
		c.Notify(c, event.CarparkUpdate)
	}
	if len(failed) > 0 {
		return fmt.Errorf("apply patch snapshot: %w", errors.Join(failed...))
	}
	return nil
}

// ComputeNearby scans the full registry in insertion order and keeps every
// carpark within radiusKM great-circle distance of center, annotated with
// its distance rounded to one decimal. The result becomes the current
// nearby list and event.NearbyListUpdate is notified with it.
//
// A non-positive radius yields an empty list, not an error. Coordinates
// are not validated; upstream geocoding owns that.
//
// Unlike the external-index path this never retries: the in-memory
// registry cannot be empty-flaky or return duplicates.
func (r *Registry) ComputeNearby(center geo.Point, radiusKM float64) []*Carpark {
	r.mu.Lock()
	result := []*Carpark{}
	if radiusKM > 0 {
		for _, c := range r.all {
			d := geo.Distance(center, c.Coordinates)
			if d <= radiusKM {
				rounded := geo.RoundKM(d)
				c.DistanceKM = &rounded
				result = append(result, c)
			}
		}
	}
	r.nearby = result
	list := make([]*Carpark, len(result))
	copy(list, result)
	r.mu.Unlock()

	r.Notify(list, event.NearbyListUpdate)
	return list
}

// ComputeNearbyFrom runs the search against an external proximity source
// instead of the registry scan. The source may return duplicates; they are
// dropped keeping the first occurrence. Distances are (re)computed from
// center so the annotation does not depend on the source. The deduplicated
// list becomes the current nearby list and is notified as usual.
func (r *Registry) ComputeNearbyFrom(ctx context.Context, finder Finder, center geo.Point, radiusKM float64) ([]*Carpark, error) {
	if radiusKM <= 0 {
		r.mu.Lock()
		r.nearby = []*Carpark{}
		r.mu.Unlock()
		r.Notify([]*Carpark{}, event.NearbyListUpdate)
		return []*Carpark{}, nil
	}

	found, err := finder.FindNearby(ctx, center, radiusKM)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	seen := make(map[string]bool, len(found))
	result := make([]*Carpark, 0, len(found))
	for _, c := range found {
		if seen[c.CarParkNo] {
			continue
		}
		seen[c.CarParkNo] = true
		rounded := geo.RoundKM(geo.Distance(center, c.Coordinates))
		c.DistanceKM = &rounded
		result = append(result, c)
	}
	r.nearby = result
	list := make([]*Carpark, len(result))
	copy(list, result)
	r.mu.Unlock()

	r.Notify(list, event.NearbyListUpdate)
	return list, nil
}

// Nearby returns a copy of the current nearby list, or nil when no search
// has run yet.
func (r *Registry) Nearby() []*Carpark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nearby == nil {
		return nil
	}
	out := make([]*Carpark, len(r.nearby))
	copy(out, r.nearby)
	return out
}

// Sort reorders the current nearby list in place and remembers the mode.
// It deliberately does not notify: reordering an already-published list is
// a read-modify, and notifying here would let sort toggling storm the
// renderer. Sorting before any search, or with an unset mode, is a no-op.
func (r *Registry) Sort(field SortField, order SortOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nearby == nil || field == "" || order == "" {
		return nil
	}
	if err := SortCarparks(r.nearby, field, order); err != nil {
		return err
	}
	r.sortField = field
	r.sortOrder = order
	return nil
}

// ToggleSort switches the active sort field, or flips direction when field
// is already active. Switching fields restores the direction the other
// field last used, defaulting to ascending the first time.
func (r *Registry) ToggleSort(field SortField) error {
	r.mu.Lock()
	if r.sortField != field {
		prev := r.sortOrder
		r.sortField = field
		if r.oldSortOrder == "" {
			r.sortOrder = SortAsc
		} else {
			r.sortOrder = r.oldSortOrder
		}
		r.oldSortOrder = prev
	} else if r.sortOrder == SortAsc {
		r.sortOrder = SortDesc
	} else {
		r.sortOrder = SortAsc
	}
	field, order := r.sortField, r.sortOrder
	r.mu.Unlock()

	return r.Sort(field, order)
}

// SortMode reports the current sort field and direction. Both are empty
// until the first Sort.
func (r *Registry) SortMode() (SortField, SortOrder) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortField, r.sortOrder
}

// SetInterested points the registry at the carpark the user is interested
// in. The pointer always refers to a carpark owned by the registry, never
// a detached copy.
func (r *Registry) SetInterested(no string) error {
	c := r.FindByNo(no)
	if c == nil {
		return fmt.Errorf("set interested: %w: %s", ErrUnknownID, no)
	}
	r.mu.Lock()
	r.interested = c
	r.mu.Unlock()
	return nil
}

// ClearInterested drops the interested pointer. Clearing when nothing is
// set is a no-op.
func (r *Registry) ClearInterested() {
	r.mu.Lock()
	r.interested = nil
	r.mu.Unlock()
}

// Interested returns the interested carpark, or nil.
func (r *Registry) Interested() *Carpark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interested
}
