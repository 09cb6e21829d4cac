package chargers

import (
	"fmt"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

// RegisterDefaults contributes one factory per enabled charger kind.
func RegisterDefaults(registry *charging.Registry, cfg config.ChargersConfig, logger *logrus.Logger) {
	if cfg.Solar.Enabled {
		registry.Register(SolarFactory(cfg.Solar, logger), "chargers/solar")
	}
	if cfg.Thermal.Enabled {
		registry.Register(ThermalFactory(cfg.Thermal, logger), "chargers/thermal")
	}
	if cfg.Reactor.Enabled {
		registry.Register(ReactorFactory(cfg.Reactor, logger), "chargers/reactor")
	}
	if cfg.Battery.Enabled {
		registry.Register(BatteryFactory(cfg.Battery, logger), "chargers/battery")
	}
}

func SolarFactory(cfg config.SolarConfig, logger *logrus.Logger) charging.ChargerFactory {
	return charging.NewFactory(func(consumer *models.Consumer) (charging.Charger, error) {
		if consumer.Environment == nil {
			return nil, fmt.Errorf("solar charger needs an environment for %s", consumer.ID)
		}
		if cfg.MaxRate < 0 {
			return nil, fmt.Errorf("solar max_rate must not be negative")
		}
		return NewSolarCharger(consumer.Environment, cfg, logger), nil
	})
}

func ThermalFactory(cfg config.ThermalConfig, logger *logrus.Logger) charging.ChargerFactory {
	return charging.NewFactory(func(consumer *models.Consumer) (charging.Charger, error) {
		if consumer.Environment == nil {
			return nil, fmt.Errorf("thermal charger needs an environment for %s", consumer.ID)
		}
		if cfg.MaxTemperature <= cfg.MinTemperature {
			return nil, fmt.Errorf("thermal max_temperature must exceed min_temperature")
		}
		return NewThermalCharger(consumer.Environment, cfg, logger), nil
	})
}

func ReactorFactory(cfg config.ReactorConfig, logger *logrus.Logger) charging.ChargerFactory {
	return charging.NewFactory(func(consumer *models.Consumer) (charging.Charger, error) {
		if cfg.Slots <= 0 {
			return nil, fmt.Errorf("reactor needs at least one slot, got %d", cfg.Slots)
		}
		if cfg.Rods > cfg.Slots {
			return nil, fmt.Errorf("reactor has %d rods for %d slots", cfg.Rods, cfg.Slots)
		}
		return NewNuclearReactor(cfg, logger), nil
	})
}

func BatteryFactory(cfg config.BatteryConfig, logger *logrus.Logger) charging.ChargerFactory {
	return charging.NewFactory(func(consumer *models.Consumer) (charging.Charger, error) {
		if cfg.Count < 0 || cfg.Capacity < 0 {
			return nil, fmt.Errorf("battery bank count and capacity must not be negative")
		}
		return NewBatteryBank(cfg, logger), nil
	})
}
