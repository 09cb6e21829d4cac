package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cyclops-power/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type step struct {
	name     string
	light    float64
	temp     float64
	depth    float64
	wait     time.Duration
	expected string
}

var scenario = []step{
	{"1. Surface, daylight", 1.0, 20, 5, 5 * time.Second, "Solar covers the deficit"},
	{"2. Diving", 0.6, 18, 150, 5 * time.Second, "Solar output drops with depth"},
	{"3. Deep and dark", 0.0, 12, 600, 10 * time.Second, "Reactor engages once the deficit passes the threshold"},
	{"4. Thermal vent", 0.0, 80, 700, 10 * time.Second, "Thermal charger takes over"},
	{"5. Back to the surface", 1.0, 22, 0, 5 * time.Second, "Renewables only"},
}

// envsim publishes a scripted dive over MQTT to drive a running power server.
func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	consumerID := pflag.String("consumer", "", "consumer to publish readings for (defaults to the first configured one)")
	timescale := pflag.Float64("timescale", 1, "simulation time scale to publish before the scenario")
	pflag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MQTT.Broker == "" {
		logger.Fatal("No MQTT broker configured")
	}
	if *consumerID == "" {
		*consumerID = cfg.Consumers[0].ID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID("cyclops-envsim-" + uuid.NewString()[:8])
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Errorf("Cannot connect to MQTT broker %s: %v", cfg.MQTT.Broker, token.Error())
		logger.Info("Start a local broker with: docker run -it -p 1883:1883 eclipse-mosquitto:2.0")
		return
	}
	defer client.Disconnect(250)

	fmt.Printf("✅ Connected to MQTT broker: %s\n\n", cfg.MQTT.Broker)

	topic := func(parts ...string) string {
		return strings.Join(append([]string{cfg.MQTT.TopicPrefix}, parts...), "/")
	}

	publishSimple(client, topic("sim", "requires_power"), "true")
	publishSimple(client, topic("sim", "timescale"), fmt.Sprintf("%g", *timescale))

	for _, s := range scenario {
		fmt.Printf("📊 %s\n", s.name)
		fmt.Printf("   Light: %.2f | Temperature: %.0f°C | Depth: %.0fm\n", s.light, s.temp, s.depth)
		fmt.Printf("   Expected: %s\n", s.expected)

		publishReading(client, topic(*consumerID, "environment", "light"), s.light)
		publishReading(client, topic(*consumerID, "environment", "temperature"), s.temp)
		publishReading(client, topic(*consumerID, "environment", "depth"), s.depth)

		fmt.Printf("   ⏳ Waiting %s...\n\n", s.wait)
		time.Sleep(s.wait)
	}

	fmt.Println("✅ Scenario complete")
	fmt.Printf("📋 Watch %s for the consumer state\n", topic(*consumerID, "state"))
}

func publishReading(client mqtt.Client, topic string, value float64) {
	payload, _ := json.Marshal(map[string]interface{}{
		"value":     value,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	token := client.Publish(topic, 1, false, payload)
	token.Wait()

	fmt.Printf("📡 Published: %s = %.2f\n", topic, value)
}

func publishSimple(client mqtt.Client, topic string, value string) {
	token := client.Publish(topic, 1, false, value)
	token.Wait()

	fmt.Printf("📡 Published: %s = %s\n", topic, value)
}
