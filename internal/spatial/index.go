// Package spatial is the external proximity source: an R-tree over carpark
// coordinates queried with a within-radius filter.
//
// Unlike the registry scan, this source is view-dependent from the caller's
// side: it is populated asynchronously after the snapshot load, so a query
// can race ahead of population and see nothing. FindNearby therefore
// retries on an empty result with a fixed delay, the same band-aid the
// map-rendered variant of this design needs for its flaky index. Results
// may also carry duplicates after repopulation; the registry deduplicates
// by carpark number before publishing.
package spatial

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/geo"
)

// ErrQueryExhausted is returned when the retry budget runs out without a
// single result. It keeps "index never populated" distinguishable from a
// genuinely empty neighbourhood.
var ErrQueryExhausted = errors.New("proximity query exhausted retries without results")

// Kilometers per degree of latitude, used to size bounding boxes.
const kmPerDegree = 111.0

// indexedCarpark caches the coordinates it was indexed under: the live
// field belongs to the registry lock, and the tree is queried without it.
type indexedCarpark struct {
	cp       *carpark.Carpark
	pt       geo.Point
	envelope rtreego.Rect
}

func (ic *indexedCarpark) Bounds() rtreego.Rect {
	return ic.envelope
}

// Index is an R-tree over carpark locations.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree

	retryDelay  time.Duration
	maxAttempts int
}

// NewIndex returns an empty index. FindNearby retries every retryDelay
// while the index yields nothing, up to maxAttempts; zero values fall back
// to 1s and 30 attempts.
func NewIndex(retryDelay time.Duration, maxAttempts int) *Index {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &Index{retryDelay: retryDelay, maxAttempts: maxAttempts}
}

// Populate (re)builds the tree from the given carparks. It runs before
// the feeds start patching, so reading the coordinates here is safe.
func (ix *Index) Populate(carparks []*carpark.Carpark) {
	tree := rtreego.NewTree(2, 25, 50)
	for _, c := range carparks {
		pt := c.Coordinates
		// Point geometry: give the envelope a tiny positive extent, rtreego
		// rejects zero-length rects.
		rect, err := rtreego.NewRect(
			rtreego.Point{pt.Lat, pt.Lng},
			[]float64{1e-9, 1e-9},
		)
		if err != nil {
			log.Printf("spatial: error indexing carpark %s: %v", c.CarParkNo, err)
			continue
		}
		tree.Insert(&indexedCarpark{cp: c, pt: pt, envelope: rect})
	}

	ix.mu.Lock()
	ix.tree = tree
	ix.mu.Unlock()
}

// Ready reports whether the index has been populated with at least one
// carpark.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree != nil && ix.tree.Size() > 0
}

// FindNearby returns every indexed carpark within radiusKM of center. An
// empty result is retried with a fixed delay until something comes back;
// when the attempt budget runs out it fails with ErrQueryExhausted instead
// of silently returning nothing. A non-positive radius short-circuits to
// an empty result without touching the retry loop.
func (ix *Index) FindNearby(ctx context.Context, center geo.Point, radiusKM float64) ([]*carpark.Carpark, error) {
	if radiusKM <= 0 {
		return []*carpark.Carpark{}, nil
	}

	for attempt := 1; ; attempt++ {
		found := ix.query(center, radiusKM)
		if len(found) > 0 {
			return found, nil
		}
		if attempt >= ix.maxAttempts {
			return nil, fmt.Errorf("%w (after %d attempts)", ErrQueryExhausted, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ix.retryDelay):
		}
	}
}

// query does one bounding-box search refined by great-circle distance:
// cheap envelope candidates first, then the haversine pass decides.
func (ix *Index) query(center geo.Point, radiusKM float64) []*carpark.Carpark {
	ix.mu.RLock()
	tree := ix.tree
	ix.mu.RUnlock()
	if tree == nil {
		return nil
	}

	latDelta := radiusKM / kmPerDegree
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngDelta := radiusKM / (kmPerDegree * cosLat)

	bbox, err := rtreego.NewRect(
		rtreego.Point{center.Lat - latDelta, center.Lng - lngDelta},
		[]float64{2 * latDelta, 2 * lngDelta},
	)
	if err != nil {
		return nil
	}

	var result []*carpark.Carpark
	for _, item := range tree.SearchIntersect(bbox) {
		ic := item.(*indexedCarpark)
		if geo.Distance(center, ic.pt) <= radiusKM {
			result = append(result, ic.cp)
		}
	}
	return result
}
