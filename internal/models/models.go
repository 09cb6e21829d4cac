package models

import (
	"sync"
	"time"
)

// PowerRelay is the energy store of a consumer. It implements the power sink
// contract used by the charge manager.
type PowerRelay struct {
	maxPower float64
	power    float64
	mutex    sync.RWMutex
}

func NewPowerRelay(maxPower, power float64) *PowerRelay {
	if maxPower < 0 {
		maxPower = 0
	}
	if power > maxPower {
		power = maxPower
	}
	if power < 0 {
		power = 0
	}
	return &PowerRelay{
		maxPower: maxPower,
		power:    power,
	}
}

func (pr *PowerRelay) GetMaxPower() float64 {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()
	return pr.maxPower
}

func (pr *PowerRelay) GetPower() float64 {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()
	return pr.power
}

// AddEnergy stores up to amount and returns what was actually accepted.
func (pr *PowerRelay) AddEnergy(amount float64) float64 {
	if amount <= 0 {
		return 0
	}

	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	room := pr.maxPower - pr.power
	if room <= 0 {
		return 0
	}
	if amount > room {
		amount = room
	}
	pr.power += amount
	return amount
}

// ConsumeEnergy draws up to amount and returns what was actually drawn.
func (pr *PowerRelay) ConsumeEnergy(amount float64) float64 {
	if amount <= 0 {
		return 0
	}

	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	if amount > pr.power {
		amount = pr.power
	}
	pr.power -= amount
	return amount
}

func (pr *PowerRelay) SetMaxPower(maxPower float64) {
	pr.mutex.Lock()
	defer pr.mutex.Unlock()
	if maxPower < 0 {
		maxPower = 0
	}
	pr.maxPower = maxPower
	if pr.power > maxPower {
		pr.power = maxPower
	}
}

// SimulationState carries the host-wide flags every consumer tick depends on.
type SimulationState struct {
	TimeScale     float64
	RequiresPower bool
	Timestamp     time.Time
	mutex         sync.RWMutex
}

func NewSimulationState() *SimulationState {
	return &SimulationState{
		TimeScale:     1,
		RequiresPower: true,
		Timestamp:     time.Now(),
	}
}

func (ss *SimulationState) SetTimeScale(scale float64) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	if scale < 0 {
		scale = 0
	}
	ss.TimeScale = scale
	ss.Timestamp = time.Now()
}

func (ss *SimulationState) SetRequiresPower(requires bool) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	ss.RequiresPower = requires
	ss.Timestamp = time.Now()
}

func (ss *SimulationState) IsPaused() bool {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.TimeScale == 0
}

func (ss *SimulationState) PowerRequired() bool {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.RequiresPower
}

func (ss *SimulationState) Get() (float64, bool, time.Time) {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.TimeScale, ss.RequiresPower, ss.Timestamp
}

// Consumer is anything that owns a power relay and needs recharging: a
// vehicle, a base, a station.
type Consumer struct {
	ID          string
	Name        string
	Relay       *PowerRelay
	State       *SimulationState
	Environment *Environment

	// LoadPerTick is drained from the relay before each recharge.
	LoadPerTick float64
}

func NewConsumer(id, name string, relay *PowerRelay, state *SimulationState, env *Environment) *Consumer {
	if state == nil {
		state = NewSimulationState()
	}
	if env == nil {
		env = NewEnvironment(0)
	}
	return &Consumer{
		ID:          id,
		Name:        name,
		Relay:       relay,
		State:       state,
		Environment: env,
	}
}
