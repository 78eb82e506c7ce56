package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"parkwhere_backend/internal/carpark"
)

// availabilityPayload mirrors the carpark-availability API. Lot counts
// arrive as strings.
type availabilityPayload struct {
	Items []struct {
		Timestamp   string `json:"timestamp"`
		CarparkData []struct {
			CarparkInfo []struct {
				TotalLots     string `json:"total_lots"`
				LotType       string `json:"lot_type"`
				LotsAvailable string `json:"lots_available"`
			} `json:"carpark_info"`
			CarparkNumber  string `json:"carpark_number"`
			UpdateDatetime string `json:"update_datetime"`
		} `json:"carpark_data"`
	} `json:"items"`
}

// Poller periodically refreshes lot availability from the public API and
// patches the registry. Carparks in the payload that the registry does not
// know are skipped, matching how the original updater omitted them.
type Poller struct {
	URL      string
	Interval time.Duration
	Registry *carpark.Registry
	client   *http.Client
}

func NewPoller(url string, interval time.Duration, reg *carpark.Registry) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		URL:      url,
		Interval: interval,
		Registry: reg,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Run polls until ctx is cancelled. Fetch errors are logged and the next
// tick tries again.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.FetchOnce(ctx); err != nil {
				log.Printf("availability: %v", err)
			}
		}
	}
}

// FetchOnce does a single availability refresh.
func (p *Poller) FetchOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch availability: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch availability: unexpected status %d", res.StatusCode)
	}

	var payload availabilityPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode availability: %w", err)
	}
	p.applyPayload(payload)
	return nil
}

func (p *Poller) applyPayload(payload availabilityPayload) {
	if len(payload.Items) == 0 {
		return
	}
	updated, skipped := 0, 0
	for _, record := range payload.Items[0].CarparkData {
		if len(record.CarparkInfo) == 0 {
			continue
		}
		info := record.CarparkInfo[0]
		totalLots, err1 := strconv.Atoi(info.TotalLots)
		lotsAvailable, err2 := strconv.Atoi(info.LotsAvailable)
		if err1 != nil || err2 != nil || totalLots <= 0 {
			continue
		}
		patch := availabilityPatch(totalLots, lotsAvailable)
		if err := p.Registry.ApplyPatch(record.CarparkNumber, patch); err != nil {
			skipped++
			continue
		}
		updated++
	}
	log.Printf("availability: updated %d carparks, skipped %d unknown", updated, skipped)
}

// availabilityPatch derives the vacancy percentage the same way the
// backend's geojson generator does: int(available/total*100).
func availabilityPatch(totalLots, lotsAvailable int) carpark.Patch {
	vacancy := float64(int(float64(lotsAvailable) / float64(totalLots) * 100))
	return carpark.Patch{
		TotalLots:         &totalLots,
		LotsAvailable:     &lotsAvailable,
		VacancyPercentage: &vacancy,
	}
}
