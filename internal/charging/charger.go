package charging

import (
	"errors"

	"cyclops-power/internal/models"
)

const (
	// MinimalPowerValue is the floor below which an amount of power is
	// considered negligible.
	MinimalPowerValue = 0.001

	// BatteryDrainRate is the fraction of a battery's charge drained per
	// unit of power it produces.
	BatteryDrainRate = 0.01

	// Mk2ChargeRateModifier is the charge rate bonus of Mk2 charging modules.
	Mk2ChargeRateModifier = 1.10
)

var (
	ErrNilConsumer     = errors.New("consumer is nil")
	ErrUnknownConsumer = errors.New("unknown consumer")
)

// Charger is one energy production strategy attached to a consumer.
type Charger interface {
	// Name identifies the charger; unique within one manager.
	Name() string

	// IsRenewable is fixed at construction. Renewable chargers are always
	// consulted, non-renewable ones only when the deficit is large enough.
	IsRenewable() bool

	// ProducePower returns how much power the charger produces this tick
	// given the consumer's deficit. It must return 0 for a deficit <= 0 and
	// must not panic; internal faults are logged and yield 0.
	ProducePower(deficit float64) float64

	// TotalReservePower reports the energy still stored in the charger.
	TotalReservePower() float64
}

// PowerSink is the energy store of a consumer.
type PowerSink interface {
	GetMaxPower() float64
	GetPower() float64
	AddEnergy(amount float64) float64
}

// ConfigProvider supplies the runtime settings read on every tick.
type ConfigProvider interface {
	RechargePenalty() float64
	UpdateMaxPower(maxPower float64)
	MinimumEnergyDeficit() float64
}

// ChargerFactory builds one charger instance for a consumer.
type ChargerFactory interface {
	NewCharger(consumer *models.Consumer) (Charger, error)
}

// FactoryFunc builds a charger from a plain function.
type FactoryFunc func(consumer *models.Consumer) (Charger, error)

type funcFactory struct {
	fn FactoryFunc
}

func (f *funcFactory) NewCharger(consumer *models.Consumer) (Charger, error) {
	return f.fn(consumer)
}

// NewFactory wraps fn in a factory value. Every call returns a distinct
// identity; register the returned value, not fn, to get duplicate detection.
func NewFactory(fn FactoryFunc) ChargerFactory {
	return &funcFactory{fn: fn}
}
