package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type Client struct {
	client   mqtt.Client
	config   *config.Config
	logger   *logrus.Logger
	settings *config.Settings
	sim      *models.SimulationState

	mutex     sync.RWMutex
	consumers map[string]*models.Consumer

	onSettingsUpdate func(key string)
}

// ValueMessage is the JSON form of a sensor reading. Plain numeric payloads
// are accepted too.
type ValueMessage struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMessage is published for every consumer after each tick.
type StateMessage struct {
	ConsumerID          string    `json:"consumer_id"`
	Power               float64   `json:"power"`
	MaxPower            float64   `json:"max_power"`
	Percent             int       `json:"percent"`
	ReservePower        int       `json:"reserve_power"`
	Deficit             float64   `json:"deficit"`
	RenewablePower      float64   `json:"renewable_power"`
	NonRenewablePower   float64   `json:"non_renewable_power"`
	NonRenewableEngaged bool      `json:"non_renewable_engaged"`
	AcceptedPower       float64   `json:"accepted_power"`
	Timestamp           time.Time `json:"timestamp"`
}

func NewClient(cfg *config.Config, settings *config.Settings, sim *models.SimulationState, logger *logrus.Logger) (*Client, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("no MQTT broker configured")
	}

	c := &Client{
		config:    cfg,
		logger:    logger,
		settings:  settings,
		sim:       sim,
		consumers: make(map[string]*models.Consumer),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	return c, nil
}

func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker...")

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("Connected to MQTT broker")
	return nil
}

func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker...")
	c.client.Disconnect(250)
}

func (c *Client) AddConsumer(consumer *models.Consumer) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.consumers[consumer.ID] = consumer
}

func (c *Client) SetSettingsCallback(callback func(key string)) {
	c.onSettingsUpdate = callback
}

func (c *Client) topic(parts ...string) string {
	return strings.Join(append([]string{c.config.MQTT.TopicPrefix}, parts...), "/")
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected, subscribing to topics...")

	subscriptions := map[string]mqtt.MessageHandler{
		c.topic("+", "environment", "+"): c.handleEnvironmentMessage,
		c.topic("sim", "+"):              c.handleSimulationMessage,
		c.topic("settings", "+"):         c.handleSettingsMessage,
	}

	for topic, handler := range subscriptions {
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.logger.Errorf("Failed to subscribe to %s: %v", topic, token.Error())
		} else {
			c.logger.Infof("Subscribed to topic: %s", topic)
		}
	}

	if c.config.MQTT.HomeAssistant {
		c.PublishDiscovery()
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) handleEnvironmentMessage(client mqtt.Client, msg mqtt.Message) {
	if err := c.applyEnvironment(msg.Topic(), msg.Payload()); err != nil {
		c.logger.Errorf("Failed to apply environment message on %s: %v", msg.Topic(), err)
	}
}

func (c *Client) handleSimulationMessage(client mqtt.Client, msg mqtt.Message) {
	if err := c.applySimulation(msg.Topic(), msg.Payload()); err != nil {
		c.logger.Errorf("Failed to apply simulation message on %s: %v", msg.Topic(), err)
	}
}

func (c *Client) handleSettingsMessage(client mqtt.Client, msg mqtt.Message) {
	if err := c.applySettings(msg.Topic(), msg.Payload()); err != nil {
		c.logger.Errorf("Failed to apply settings message on %s: %v", msg.Topic(), err)
	}
}

// applyEnvironment handles <prefix>/<consumer>/environment/<kind>.
func (c *Client) applyEnvironment(topic string, payload []byte) error {
	parts := strings.Split(strings.TrimPrefix(topic, c.config.MQTT.TopicPrefix+"/"), "/")
	if len(parts) != 3 || parts[1] != "environment" {
		return fmt.Errorf("unexpected topic %s", topic)
	}

	c.mutex.RLock()
	consumer, ok := c.consumers[parts[0]]
	c.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", charging.ErrUnknownConsumer, parts[0])
	}

	value, ts, err := parseValue(payload)
	if err != nil {
		return err
	}

	switch parts[2] {
	case "light":
		consumer.Environment.UpdateLight(value, ts)
	case "temperature":
		consumer.Environment.UpdateTemperature(value, ts)
	case "depth":
		consumer.Environment.UpdateDepth(value, ts)
	default:
		return fmt.Errorf("unknown environment reading %q", parts[2])
	}

	c.logger.Debugf("Environment %s/%s updated: %.2f", consumer.ID, parts[2], value)
	return nil
}

// applySimulation handles <prefix>/sim/timescale and <prefix>/sim/requires_power.
func (c *Client) applySimulation(topic string, payload []byte) error {
	switch topic {
	case c.topic("sim", "timescale"):
		value, _, err := parseValue(payload)
		if err != nil {
			return err
		}
		c.sim.SetTimeScale(value)
		c.logger.Infof("Simulation time scale set to %.2f", value)
	case c.topic("sim", "requires_power"):
		requires, err := parseBool(payload)
		if err != nil {
			return err
		}
		c.sim.SetRequiresPower(requires)
		c.logger.Infof("Simulation requires power: %v", requires)
	default:
		return fmt.Errorf("unexpected topic %s", topic)
	}
	return nil
}

// applySettings handles <prefix>/settings/<key>.
func (c *Client) applySettings(topic string, payload []byte) error {
	key := strings.TrimPrefix(topic, c.topic("settings")+"/")
	raw := strings.TrimSpace(string(payload))

	switch key {
	case "deficit_threshold":
		value, _, err := parseValue(payload)
		if err != nil {
			return err
		}
		c.settings.SetDeficitThreshold(value)
	case "challenge":
		level, err := config.ParseChallengeLevel(raw)
		if err != nil {
			return err
		}
		if err := c.settings.SetChallengeLevel(level); err != nil {
			return err
		}
	case "debug_logs":
		enabled, err := parseBool(payload)
		if err != nil {
			return err
		}
		c.settings.SetDebugLogsEnabled(enabled)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}

	c.logger.Infof("Setting %s updated to %s", key, raw)
	if c.onSettingsUpdate != nil {
		c.onSettingsUpdate(key)
	}
	return nil
}

func parseValue(payload []byte) (float64, time.Time, error) {
	if json.Valid(payload) {
		var msg ValueMessage
		if err := json.Unmarshal(payload, &msg); err == nil {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			return msg.Value, msg.Timestamp, nil
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to parse value %q: %w", string(payload), err)
	}
	return value, time.Now(), nil
}

func parseBool(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, fmt.Errorf("failed to parse boolean %q", string(payload))
}

// PublishState publishes the consumer's state after a tick.
func (c *Client) PublishState(manager *charging.Manager, report charging.TickReport) {
	msg := NewStateMessage(manager, report)

	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Errorf("Failed to encode state for %s: %v", msg.ConsumerID, err)
		return
	}

	// Fire and forget: the tick loop never waits on the broker.
	c.client.Publish(c.topic(msg.ConsumerID, "state"), 0, false, payload)
}

func NewStateMessage(manager *charging.Manager, report charging.TickReport) StateMessage {
	consumer := manager.Consumer()
	power, maxPower := consumer.Relay.GetPower(), consumer.Relay.GetMaxPower()

	percent := 0
	if maxPower > 0 {
		percent = int(math.Ceil(power / maxPower * 100))
	}

	return StateMessage{
		ConsumerID:          consumer.ID,
		Power:               power,
		MaxPower:            maxPower,
		Percent:             percent,
		ReservePower:        manager.TotalReservePower(),
		Deficit:             report.Deficit,
		RenewablePower:      report.RenewablePower,
		NonRenewablePower:   report.NonRenewablePower,
		NonRenewableEngaged: report.NonRenewableEngaged,
		AcceptedPower:       report.AcceptedPower,
		Timestamp:           report.Timestamp,
	}
}
