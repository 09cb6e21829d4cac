package chargers

import (
	"math"
	"sync"

	"cyclops-power/internal/config"

	"github.com/sirupsen/logrus"
)

const BatteryBankName = "battery"

type Battery struct {
	Charge   float64
	Capacity float64
}

// Store adds up to amount and returns what fit.
func (b *Battery) Store(amount float64) float64 {
	room := b.Capacity - b.Charge
	if amount <= 0 || room <= 0 {
		return 0
	}
	amount = math.Min(amount, room)
	b.Charge += amount
	return amount
}

// Draw removes up to amount and returns what was available.
func (b *Battery) Draw(amount float64) float64 {
	if amount <= 0 || b.Charge <= 0 {
		return 0
	}
	amount = math.Min(amount, b.Charge)
	b.Charge -= amount
	return amount
}

// BatteryBank is a set of reserve batteries discharged in order.
type BatteryBank struct {
	logger  *logrus.Logger
	maxRate float64

	mutex     sync.Mutex
	batteries []Battery
}

// NewBatteryBank returns a bank of cfg.Count fully charged batteries.
func NewBatteryBank(cfg config.BatteryConfig, logger *logrus.Logger) *BatteryBank {
	bank := &BatteryBank{
		logger:  logger,
		maxRate: cfg.MaxRate,
	}
	for i := 0; i < cfg.Count; i++ {
		bank.batteries = append(bank.batteries, Battery{Charge: cfg.Capacity, Capacity: cfg.Capacity})
	}
	return bank
}

func (b *BatteryBank) Name() string {
	return BatteryBankName
}

func (b *BatteryBank) IsRenewable() bool {
	return false
}

func (b *BatteryBank) ProducePower(deficit float64) float64 {
	if math.IsNaN(deficit) {
		b.logger.Warnf("Battery bank received invalid deficit")
		return 0
	}
	if deficit <= 0 {
		return 0
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	wanted := math.Min(b.maxRate, deficit)
	produced := 0.0
	for i := range b.batteries {
		if produced >= wanted {
			break
		}
		produced += b.batteries[i].Draw(wanted - produced)
	}
	return produced
}

func (b *BatteryBank) TotalReservePower() float64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	total := 0.0
	for _, battery := range b.batteries {
		total += battery.Charge
	}
	return total
}

// AddBattery inserts a battery at the end of the discharge order.
func (b *BatteryBank) AddBattery(battery Battery) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.batteries = append(b.batteries, battery)
}

func (b *BatteryBank) Batteries() []Battery {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	out := make([]Battery, len(b.batteries))
	copy(out, b.batteries)
	return out
}
