package chargers

import (
	"errors"
	"math"
	"sync"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"

	"github.com/sirupsen/logrus"
)

const ReactorChargerName = "reactor"

// EmptySlotCharge marks a slot holding nothing.
const EmptySlotCharge = -1.0

var ErrNoFreeSlot = errors.New("no free reactor slot")

type RodType int

const (
	RodNone RodType = iota
	RodReactor
	RodDepleted
)

func (r RodType) String() string {
	switch r {
	case RodNone:
		return "none"
	case RodReactor:
		return "reactor_rod"
	case RodDepleted:
		return "depleted_rod"
	}
	return "unknown"
}

// SlotData is one reactor slot.
type SlotData struct {
	Rod    RodType
	Charge float64
}

func EmptySlot() SlotData {
	return SlotData{Rod: RodNone, Charge: EmptySlotCharge}
}

func NewRodSlot(charge float64) SlotData {
	return SlotData{Rod: RodReactor, Charge: charge}
}

// HasPower is true only for a reactor rod with usable charge left.
func (s SlotData) HasPower() bool {
	return s.Rod == RodReactor && s.Charge > charging.MinimalPowerValue
}

// NuclearReactor burns reactor rods. Each powered rod yields up to
// PerRodRate per tick and loses DrainRate charge per unit produced.
type NuclearReactor struct {
	logger *logrus.Logger

	perRodRate float64
	drainRate  float64

	mutex sync.Mutex
	slots []SlotData
}

// NewNuclearReactor builds a reactor with cfg.Slots slots, the first
// cfg.Rods of them loaded with fresh rods.
func NewNuclearReactor(cfg config.ReactorConfig, logger *logrus.Logger) *NuclearReactor {
	drainRate := cfg.DrainRate
	if drainRate <= 0 {
		drainRate = 1
	}

	r := &NuclearReactor{
		logger:     logger,
		perRodRate: cfg.PerRodRate,
		drainRate:  drainRate,
		slots:      make([]SlotData, cfg.Slots),
	}
	for i := range r.slots {
		if i < cfg.Rods {
			r.slots[i] = NewRodSlot(cfg.RodCharge)
		} else {
			r.slots[i] = EmptySlot()
		}
	}
	return r
}

func (r *NuclearReactor) Name() string {
	return ReactorChargerName
}

func (r *NuclearReactor) IsRenewable() bool {
	return false
}

func (r *NuclearReactor) ProducePower(deficit float64) float64 {
	if math.IsNaN(deficit) {
		r.logger.Warnf("Reactor received invalid deficit")
		return 0
	}
	if deficit <= 0 {
		return 0
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	produced := 0.0
	for i := range r.slots {
		if produced >= deficit {
			break
		}

		slot := &r.slots[i]
		if !slot.HasPower() {
			continue
		}

		wanted := math.Min(r.perRodRate, deficit-produced)
		supplied := math.Min(wanted, slot.Charge/r.drainRate)
		slot.Charge -= supplied * r.drainRate
		produced += supplied

		if !slot.HasPower() {
			slot.Rod = RodDepleted
			slot.Charge = 0
			r.logger.Infof("Reactor rod in slot %d depleted", i)
		}
	}
	return produced
}

// TotalReservePower is the power the loaded rods can still produce.
func (r *NuclearReactor) TotalReservePower() float64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	total := 0.0
	for _, slot := range r.slots {
		if slot.HasPower() {
			total += slot.Charge / r.drainRate
		}
	}
	return total
}

// AddRod loads a rod into the first empty slot.
func (r *NuclearReactor) AddRod(charge float64) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := range r.slots {
		if r.slots[i].Rod == RodNone {
			r.slots[i] = NewRodSlot(charge)
			return i, nil
		}
	}
	return -1, ErrNoFreeSlot
}

// RemoveDepleted empties every slot holding a depleted rod.
func (r *NuclearReactor) RemoveDepleted() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := 0
	for i := range r.slots {
		if r.slots[i].Rod == RodDepleted {
			r.slots[i] = EmptySlot()
			removed++
		}
	}
	return removed
}

func (r *NuclearReactor) ActiveRods() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for _, slot := range r.slots {
		if slot.HasPower() {
			count++
		}
	}
	return count
}

func (r *NuclearReactor) Slots() []SlotData {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]SlotData, len(r.slots))
	copy(out, r.slots)
	return out
}
