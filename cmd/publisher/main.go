package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Default school from the agent config.
const (
	schoolLat = 33.50148021702571
	schoolLon = -7.6367796029366675
)

type locationMessage struct {
	ParentID  string  `json:"parent_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

func randomParentID() string {
	return fmt.Sprintf("parent-%04d", rand.Intn(10000))
}

// randomCityFix lands somewhere in greater Casablanca, mostly outside the zone.
func randomCityFix() (float64, float64) {
	return schoolLat + (rand.Float64()-0.5)*0.2, schoolLon + (rand.Float64()-0.5)*0.2
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds>\n", os.Args[0])
		os.Exit(1)
	}

	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}

	broker := "tcp://localhost:1883"
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		broker = v
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("safedrop-mock-device")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	parentPool := make([]string, 5)
	for i := range parentPool {
		parentPool[i] = randomParentID()
	}

	log.WithFields(logrus.Fields{
		"broker":   broker,
		"interval": intervalSec,
		"parents":  parentPool,
	}).Info("publishing device locations")

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		pid := parentPool[rand.Intn(len(parentPool))]

		var lat, lon float64
		// 30% of fixes are at the school gate, ~100m drift
		if rand.Float64() < 0.3 {
			lat = schoolLat + (rand.Float64()-0.5)*0.001
			lon = schoolLon + (rand.Float64()-0.5)*0.001
		} else {
			lat, lon = randomCityFix()
		}

		payload, _ := json.Marshal(locationMessage{
			ParentID:  pid,
			Latitude:  lat,
			Longitude: lon,
			Timestamp: time.Now().Unix(),
		})
		topic := fmt.Sprintf("/safedrop/parents/%s/location", pid)

		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).WithField("topic", topic).Warn("publish failed")
			continue
		}

		log.WithField("topic", topic).Debugf("published %s", payload)
	}
}
