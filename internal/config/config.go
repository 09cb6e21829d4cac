package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Chargers   ChargersConfig   `mapstructure:"chargers"`
	Consumers  []ConsumerConfig `mapstructure:"consumers"`
	Settings   SettingsConfig   `mapstructure:"settings"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	HomeAssistant   bool   `mapstructure:"home_assistant"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

type SimulationConfig struct {
	// TickInterval in milliseconds.
	TickInterval    int     `mapstructure:"tick_interval"`
	SmoothingFactor float64 `mapstructure:"smoothing_factor"`
}

type ChargersConfig struct {
	Solar   SolarConfig   `mapstructure:"solar"`
	Thermal ThermalConfig `mapstructure:"thermal"`
	Reactor ReactorConfig `mapstructure:"reactor"`
	Battery BatteryConfig `mapstructure:"battery"`
}

type SolarConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MaxRate         float64 `mapstructure:"max_rate"`
	MaxDepth        float64 `mapstructure:"max_depth"`
	Mk2             bool    `mapstructure:"mk2"`
	BatteryCapacity float64 `mapstructure:"battery_capacity"`
}

type ThermalConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxRate        float64 `mapstructure:"max_rate"`
	MinTemperature float64 `mapstructure:"min_temperature"`
	MaxTemperature float64 `mapstructure:"max_temperature"`
}

type ReactorConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Slots      int     `mapstructure:"slots"`
	Rods       int     `mapstructure:"rods"`
	RodCharge  float64 `mapstructure:"rod_charge"`
	PerRodRate float64 `mapstructure:"per_rod_rate"`
	DrainRate  float64 `mapstructure:"drain_rate"`
}

type BatteryConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Count    int     `mapstructure:"count"`
	Capacity float64 `mapstructure:"capacity"`
	MaxRate  float64 `mapstructure:"max_rate"`
}

type ConsumerConfig struct {
	ID           string  `mapstructure:"id"`
	Name         string  `mapstructure:"name"`
	MaxPower     float64 `mapstructure:"max_power"`
	InitialPower float64 `mapstructure:"initial_power"`
	LoadPerTick  float64 `mapstructure:"load_per_tick"`
}

type SettingsConfig struct {
	File string `mapstructure:"file"`
}

// Load reads the service configuration. An empty path searches ./config.yaml
// and ./config/config.yaml; a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("CYCLOPS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", path)
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.MQTT.Broker == "" {
		config.MQTT.Broker = os.Getenv("MQTT_BROKER")
	}
	if config.MQTT.Username == "" {
		config.MQTT.Username = os.Getenv("MQTT_USERNAME")
	}
	if config.MQTT.Password == "" {
		config.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	}
	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "cyclops-power-" + uuid.NewString()[:8]
	}

	if len(config.Consumers) == 0 {
		config.Consumers = []ConsumerConfig{{
			ID:           "cyclops",
			Name:         "Cyclops",
			MaxPower:     1200,
			InitialPower: 1200,
			LoadPerTick:  1,
		}}
	}
	for i := range config.Consumers {
		if err := config.Consumers[i].normalize(); err != nil {
			return nil, fmt.Errorf("consumer %d: %w", i, err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("mqtt.topic_prefix", "cyclops")
	v.SetDefault("mqtt.home_assistant", true)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("simulation.tick_interval", 1000)
	v.SetDefault("simulation.smoothing_factor", 5.0)
	v.SetDefault("settings.file", "cyclops-settings.yaml")

	v.SetDefault("chargers.solar.enabled", true)
	v.SetDefault("chargers.solar.max_rate", 0.82)
	v.SetDefault("chargers.solar.max_depth", 250.0)
	v.SetDefault("chargers.solar.mk2", false)
	v.SetDefault("chargers.solar.battery_capacity", 100.0)

	v.SetDefault("chargers.thermal.enabled", true)
	v.SetDefault("chargers.thermal.max_rate", 1.5)
	v.SetDefault("chargers.thermal.min_temperature", 35.0)
	v.SetDefault("chargers.thermal.max_temperature", 100.0)

	v.SetDefault("chargers.reactor.enabled", true)
	v.SetDefault("chargers.reactor.slots", 4)
	v.SetDefault("chargers.reactor.rods", 2)
	v.SetDefault("chargers.reactor.rod_charge", 20000.0)
	v.SetDefault("chargers.reactor.per_rod_rate", 1.5)
	v.SetDefault("chargers.reactor.drain_rate", 1.0)

	v.SetDefault("chargers.battery.enabled", false)
	v.SetDefault("chargers.battery.count", 2)
	v.SetDefault("chargers.battery.capacity", 200.0)
	v.SetDefault("chargers.battery.max_rate", 2.0)
}

func (cc *ConsumerConfig) normalize() error {
	if cc.MaxPower <= 0 {
		return fmt.Errorf("max_power must be positive, got %.2f", cc.MaxPower)
	}
	if cc.ID == "" {
		cc.ID = uuid.NewString()
	}
	if cc.Name == "" {
		cc.Name = cc.ID
	}
	if cc.InitialPower > cc.MaxPower {
		cc.InitialPower = cc.MaxPower
	}
	if cc.InitialPower < 0 {
		cc.InitialPower = 0
	}
	if cc.LoadPerTick < 0 {
		cc.LoadPerTick = 0
	}
	return nil
}
