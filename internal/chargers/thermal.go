package chargers

import (
	"math"

	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

const ThermalChargerName = "thermal"

// ThermalCharger draws power from hot water. Output scales linearly from
// zero at MinTemperature to MaxRate at MaxTemperature.
type ThermalCharger struct {
	env    *models.Environment
	logger *logrus.Logger

	maxRate float64
	minTemp float64
	maxTemp float64
}

func NewThermalCharger(env *models.Environment, cfg config.ThermalConfig, logger *logrus.Logger) *ThermalCharger {
	return &ThermalCharger{
		env:     env,
		logger:  logger,
		maxRate: cfg.MaxRate,
		minTemp: cfg.MinTemperature,
		maxTemp: cfg.MaxTemperature,
	}
}

func (t *ThermalCharger) Name() string {
	return ThermalChargerName
}

func (t *ThermalCharger) IsRenewable() bool {
	return true
}

func (t *ThermalCharger) ThermalRate() float64 {
	span := t.maxTemp - t.minTemp
	if span <= 0 {
		return 0
	}
	factor := (t.env.Temperature() - t.minTemp) / span
	return t.maxRate * math.Max(0, math.Min(1, factor))
}

func (t *ThermalCharger) ProducePower(deficit float64) float64 {
	if math.IsNaN(deficit) {
		t.logger.Warnf("Thermal charger received invalid deficit")
		return 0
	}
	if deficit <= 0 {
		return 0
	}
	return math.Min(t.ThermalRate(), deficit)
}

func (t *ThermalCharger) TotalReservePower() float64 {
	return 0
}
