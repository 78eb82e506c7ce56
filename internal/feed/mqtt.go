package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"parkwhere_backend/internal/carpark"
)

// MQTTConfig is the broker connection for the live availability feed.
// Topic should contain a single-level wildcard where the carpark number
// sits, e.g. "carparks/+/availability".
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

type mqttAvailability struct {
	TotalLots     int `json:"total_lots"`
	LotsAvailable int `json:"lots_available"`
}

// SetupMQTT connects to the broker and subscribes to the availability
// topic. Each message patches one carpark; the carpark's own subscribers
// (the websocket hub among them) take it from there.
func SetupMQTT(cfg MQTTConfig, reg *carpark.Registry) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		carparkNo, ok := carparkNoFromTopic(msg.Topic())
		if !ok {
			log.Printf("mqtt: could not extract carpark number from topic: %s", msg.Topic())
			return
		}

		var payload mqttAvailability
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			log.Printf("mqtt: error unmarshalling payload for carpark %s: %v", carparkNo, err)
			return
		}
		if payload.TotalLots <= 0 {
			return
		}

		patch := availabilityPatch(payload.TotalLots, payload.LotsAvailable)
		if err := reg.ApplyPatch(carparkNo, patch); err != nil {
			log.Printf("mqtt: %v", err)
			return
		}
		log.Printf("mqtt: availability update for carpark %s - %d/%d lots",
			carparkNo, payload.LotsAvailable, payload.TotalLots)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	if token := client.Subscribe(cfg.Topic, 0, nil); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribe to topic %s: %w", cfg.Topic, token.Error())
	}
	log.Printf("mqtt: subscribed to topic: %s", cfg.Topic)
	return client, nil
}

// carparkNoFromTopic pulls the carpark number out of the second topic
// level ("carparks/<no>/availability").
func carparkNoFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
