package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/config"
	"parkwhere_backend/internal/feed"
	"parkwhere_backend/internal/interest"
	"parkwhere_backend/internal/server"
	"parkwhere_backend/internal/spatial"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	records, err := loadSnapshot(ctx, cfg)
	if err != nil {
		log.Fatalf("Error loading carpark snapshot: %v", err)
	}

	reg := carpark.NewRegistry()
	if err := reg.Seed(records); err != nil {
		log.Fatalf("Error seeding registry: %v", err)
	}
	log.Printf("Loaded %d carparks", reg.Len())

	hub := server.NewHub()
	hub.Bind(reg)

	index := spatial.NewIndex(cfg.IndexRetryDelay, cfg.IndexRetryMax)
	index.Populate(reg.All())

	if cfg.InterestedCarparkNo != "" {
		if err := reg.SetInterested(cfg.InterestedCarparkNo); err != nil {
			log.Printf("Ignoring remembered interested carpark: %v", err)
		}
	}

	if cfg.AvailabilityURL != "" {
		poller := feed.NewPoller(cfg.AvailabilityURL, cfg.AvailabilityPoll, reg)
		if err := poller.FetchOnce(ctx); err != nil {
			log.Printf("Initial availability fetch failed: %v", err)
		}
		go poller.Run(ctx)
	}

	if cfg.MQTTBroker != "" {
		if _, err := feed.SetupMQTT(feed.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, reg); err != nil {
			log.Fatalf("Error setting up MQTT feed: %v", err)
		}
	}

	sync := interest.New(cfg.DriversURL, reg, interest.Hooks{})
	srv := server.New(reg, index, sync, hub)

	log.Printf("Server started on http://localhost:%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, srv.Handler()))
}

func loadSnapshot(ctx context.Context, cfg config.Config) ([]carpark.Record, error) {
	if cfg.SnapshotPath != "" {
		return feed.LoadSnapshotFile(cfg.SnapshotPath)
	}
	if cfg.SnapshotURL == "" {
		return nil, errors.New("no snapshot source configured (set SNAPSHOT_PATH or SNAPSHOT_URL)")
	}
	return feed.FetchSnapshot(ctx, cfg.SnapshotURL)
}
