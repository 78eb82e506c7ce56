// Package config reads the daemon configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config for the parkwhered daemon.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// DriversURL is the authoritative backend endpoint interest mutations
	// are forwarded to.
	DriversURL string

	// The seed snapshot comes from SnapshotPath when set, otherwise from
	// SnapshotURL.
	SnapshotPath string
	SnapshotURL  string

	// AvailabilityURL, when set, enables the periodic availability poller.
	AvailabilityURL  string
	AvailabilityPoll time.Duration

	// MQTT broker for the live availability feed; empty disables it.
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	// Spatial index retry tuning.
	IndexRetryDelay time.Duration
	IndexRetryMax   int

	// InterestedCarparkNo, when set, is resolved against the registry at
	// startup (the session's remembered interest).
	InterestedCarparkNo string
}

// Load reads the environment. A missing .env file is fine.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                envOr("PORT", "8080"),
		DriversURL:          envOr("DRIVERS_URL", "http://localhost:5000/drivers"),
		SnapshotPath:        os.Getenv("SNAPSHOT_PATH"),
		SnapshotURL:         os.Getenv("SNAPSHOT_URL"),
		AvailabilityURL:     os.Getenv("AVAILABILITY_URL"),
		AvailabilityPoll:    envDuration("AVAILABILITY_POLL", time.Minute),
		MQTTBroker:          os.Getenv("MQTT_BROKER"),
		MQTTClientID:        envOr("MQTT_CLIENT_ID", "parkwhere_backend"),
		MQTTUsername:        os.Getenv("MQTT_USERNAME"),
		MQTTPassword:        os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:           envOr("MQTT_TOPIC", "carparks/+/availability"),
		IndexRetryDelay:     envDuration("INDEX_RETRY_DELAY", time.Second),
		IndexRetryMax:       envInt("INDEX_RETRY_MAX", 30),
		InterestedCarparkNo: os.Getenv("INTERESTED_CARPARK_NO"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
