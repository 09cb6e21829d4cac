package mqtt

import (
	"encoding/json"
	"strings"
)

type DeviceClass int64

const (
	NoDeviceClass DeviceClass = iota
	Energy
	EnergyStorage
	Power
	Temperature
	Distance
	Illuminance
)

func (s DeviceClass) String() string {
	switch s {
	case Energy:
		return "energy"
	case EnergyStorage:
		return "energy_storage"
	case Power:
		return "power"
	case Temperature:
		return "temperature"
	case Distance:
		return "distance"
	case Illuminance:
		return "illuminance"
	}
	return ""
}

func (s DeviceClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Unit int64

const (
	NoUnit Unit = iota
	W
	Wh
	Percent
	Celsius
	Meter
)

func (s Unit) String() string {
	switch s {
	case W:
		return "W"
	case Wh:
		return "Wh"
	case Percent:
		return "%"
	case Celsius:
		return "°C"
	case Meter:
		return "m"
	}
	return ""
}

func (s Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Device struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

// ConfigurationItem is a Home Assistant MQTT discovery payload for a sensor.
type ConfigurationItem struct {
	DeviceClass       DeviceClass `json:"device_class,omitempty"`
	UnitOfMeasurement Unit        `json:"unit_of_measurement,omitempty"`
	Device            Device      `json:"device"`
	StateClass        string      `json:"state_class,omitempty"`
	UniqueId          string      `json:"unique_id"`
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic"`
	ValueTemplate     string      `json:"value_template,omitempty"`
}

type sensorDef struct {
	name        string
	field       string
	deviceClass DeviceClass
	unit        Unit
}

var stateSensors = []sensorDef{
	{"Stored Power", "power", EnergyStorage, Wh},
	{"Charge", "percent", NoDeviceClass, Percent},
	{"Reserve Power", "reserve_power", EnergyStorage, Wh},
	{"Deficit", "deficit", Energy, Wh},
	{"Renewable Power", "renewable_power", Power, W},
	{"Non Renewable Power", "non_renewable_power", Power, W},
}

// DiscoveryItems lists the sensors exposed for one consumer.
func DiscoveryItems(consumerID, consumerName, stateTopic string) []ConfigurationItem {
	device := Device{
		Identifiers: []string{"cyclops_" + consumerID},
		Name:        consumerName,
	}

	items := make([]ConfigurationItem, 0, len(stateSensors))
	for _, sensor := range stateSensors {
		items = append(items, ConfigurationItem{
			DeviceClass:       sensor.deviceClass,
			UnitOfMeasurement: sensor.unit,
			Device:            device,
			StateClass:        "measurement",
			UniqueId:          discoveryName(consumerID, sensor.name),
			Name:              sensor.name,
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json." + sensor.field + " }}",
		})
	}
	return items
}

func discoveryName(globalName, itemName string) string {
	return globalName + "_" + strings.Replace(strings.ToLower(itemName), " ", "_", -1)
}

// PublishDiscovery sends retained discovery configs for every consumer.
func (c *Client) PublishDiscovery() {
	c.mutex.RLock()
	consumers := make([]struct{ id, name string }, 0, len(c.consumers))
	for _, consumer := range c.consumers {
		consumers = append(consumers, struct{ id, name string }{consumer.ID, consumer.Name})
	}
	c.mutex.RUnlock()

	for _, consumer := range consumers {
		for _, item := range DiscoveryItems(consumer.id, consumer.name, c.topic(consumer.id, "state")) {
			b, err := json.Marshal(item)
			if err != nil {
				c.logger.Errorf("Failed to encode discovery item %s: %v", item.UniqueId, err)
				continue
			}
			topic := c.config.MQTT.DiscoveryPrefix + "/sensor/" + item.UniqueId + "/config"
			token := c.client.Publish(topic, 0, true, b)
			token.Wait()
		}
		c.logger.Infof("Published Home Assistant discovery for %s", consumer.id)
	}
}
