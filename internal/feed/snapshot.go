// Package feed keeps the registry fed: the seed snapshot at startup, the
// availability poller, and the live MQTT feed.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"parkwhere_backend/internal/carpark"
)

// LoadSnapshotFile reads a facility snapshot from a local JSON file.
func LoadSnapshotFile(path string) ([]carpark.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return decodeSnapshot(f)
}

// FetchSnapshot pulls the facility snapshot from the backend.
func FetchSnapshot(ctx context.Context, url string) ([]carpark.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: unexpected status %d", res.StatusCode)
	}
	return decodeSnapshot(res.Body)
}

// decodeSnapshot drops records without availability data, the way the
// backend's geojson generator does: a carpark with no known lot counts
// cannot be ranked by vacancy and never shows on the map.
func decodeSnapshot(r io.Reader) ([]carpark.Record, error) {
	records, err := carpark.DecodeRecords(r)
	if err != nil {
		return nil, err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.TotalLots <= 0 {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, nil
}
