package chargers

import (
	"math"
	"sync"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

const SolarChargerName = "solar"

// SolarCharger converts ambient light into power. Output falls off linearly
// with depth down to MaxDepth. The Mk2 variant charges faster and banks
// surplus light into an internal battery it draws from in the dark.
type SolarCharger struct {
	env    *models.Environment
	logger *logrus.Logger

	maxRate  float64
	maxDepth float64
	mk2      bool

	mutex   sync.Mutex
	battery Battery
}

func NewSolarCharger(env *models.Environment, cfg config.SolarConfig, logger *logrus.Logger) *SolarCharger {
	s := &SolarCharger{
		env:      env,
		logger:   logger,
		maxRate:  cfg.MaxRate,
		maxDepth: cfg.MaxDepth,
		mk2:      cfg.Mk2,
	}
	if cfg.Mk2 {
		s.maxRate *= charging.Mk2ChargeRateModifier
		s.battery = Battery{Capacity: cfg.BatteryCapacity}
	}
	return s
}

func (s *SolarCharger) Name() string {
	return SolarChargerName
}

func (s *SolarCharger) IsRenewable() bool {
	return true
}

func (s *SolarCharger) IsMk2() bool {
	return s.mk2
}

// SolarRate is the power the panels collect this tick.
func (s *SolarCharger) SolarRate() float64 {
	depthFactor := 1.0
	if s.maxDepth > 0 {
		depthFactor = math.Max(0, math.Min(1, 1-s.env.Depth()/s.maxDepth))
	}
	return s.maxRate * s.env.Light() * depthFactor
}

func (s *SolarCharger) ProducePower(deficit float64) float64 {
	if math.IsNaN(deficit) {
		s.logger.Warnf("Solar charger received invalid deficit")
		return 0
	}

	rate := s.SolarRate()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if deficit <= 0 {
		if s.mk2 && rate > charging.MinimalPowerValue {
			s.battery.Store(rate)
		}
		return 0
	}

	if rate > charging.MinimalPowerValue {
		produced := math.Min(rate, deficit)
		if s.mk2 {
			s.battery.Store(rate - produced)
		}
		return produced
	}

	if !s.mk2 {
		return 0
	}

	// In the dark the Mk2 drains a fixed fraction of its battery per tick.
	return s.battery.Draw(math.Min(deficit, s.battery.Capacity*charging.BatteryDrainRate))
}

func (s *SolarCharger) TotalReservePower() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.battery.Charge
}

func (s *SolarCharger) Battery() Battery {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.battery
}
