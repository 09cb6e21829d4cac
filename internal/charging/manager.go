package charging

import (
	"fmt"
	"math"
	"sync"
	"time"

	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// TickReport describes what happened during the last recharge.
// EffectivePower is the produced power after the recharge penalty and
// AcceptedPower is what the sink actually stored.
type TickReport struct {
	Deficit             float64
	RenewablePower      float64
	NonRenewablePower   float64
	ProducedPower       float64
	NonRenewableEngaged bool
	Committed           bool
	EffectivePower      float64
	AcceptedPower       float64
	RemainingDeficit    float64
	Timestamp           time.Time
}

type simulationState interface {
	IsPaused() bool
	PowerRequired() bool
}

// Manager balances the chargers of one consumer against its power deficit.
type Manager struct {
	consumer *models.Consumer
	sink     PowerSink
	sim      simulationState
	registry *Registry
	settings ConfigProvider
	logger   *logrus.Logger
	metrics  *Metrics

	mutex   sync.RWMutex
	state   State
	initErr error

	// Written only while initializing, read-only afterwards.
	knownChargers        map[string]Charger
	renewableChargers    []Charger
	nonRenewableChargers []Charger

	lastReport TickReport
}

func NewManager(consumer *models.Consumer, registry *Registry, settings ConfigProvider, logger *logrus.Logger) (*Manager, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	if consumer.Relay == nil {
		return nil, fmt.Errorf("consumer %s has no power relay", consumer.ID)
	}

	var sim simulationState = consumer.State
	if consumer.State == nil {
		sim = models.NewSimulationState()
	}

	return &Manager{
		consumer:      consumer,
		sink:          consumer.Relay,
		sim:           sim,
		registry:      registry,
		settings:      settings,
		logger:        logger,
		knownChargers: make(map[string]Charger),
	}, nil
}

func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

func (m *Manager) Consumer() *models.Consumer {
	return m.consumer
}

func (m *Manager) State() State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.state
}

// Initialize creates the consumer's chargers from every registered factory.
// It runs once; later calls return the outcome of the first one. A factory
// error leaves the manager failed with no chargers at all.
func (m *Manager) Initialize() (bool, error) {
	m.mutex.Lock()
	switch m.state {
	case StateReady:
		m.mutex.Unlock()
		return true, nil
	case StateFailed:
		err := m.initErr
		m.mutex.Unlock()
		return false, err
	case StateInitializing:
		m.mutex.Unlock()
		return false, nil
	}
	m.state = StateInitializing
	m.mutex.Unlock()

	m.logger.Debugf("Initializing chargers for %s", m.consumer.ID)

	chargers, err := m.registry.CreateAll(m.consumer)
	if err != nil {
		m.mutex.Lock()
		m.state = StateFailed
		m.initErr = err
		m.mutex.Unlock()
		m.logger.Errorf("Charger initialization failed for %s: %v", m.consumer.ID, err)
		return false, err
	}

	known := make(map[string]Charger, len(chargers))
	var renewable, nonRenewable []Charger

	for _, charger := range chargers {
		if _, exists := known[charger.Name()]; exists {
			m.logger.Warnf("Duplicate charger '%s' (%T) was blocked", charger.Name(), charger)
			continue
		}

		known[charger.Name()] = charger
		if charger.IsRenewable() {
			renewable = append(renewable, charger)
		} else {
			nonRenewable = append(nonRenewable, charger)
		}
	}

	m.mutex.Lock()
	m.knownChargers = known
	m.renewableChargers = renewable
	m.nonRenewableChargers = nonRenewable
	m.state = StateReady
	m.mutex.Unlock()

	m.logger.Infof("Consumer %s ready with %d renewable and %d non-renewable chargers",
		m.consumer.ID, len(renewable), len(nonRenewable))

	return true, nil
}

// RechargeConsumer runs one tick: renewable chargers first, non-renewable
// ones only when the deficit is above the configured threshold, then the
// penalised production is committed to the sink.
func (m *Manager) RechargeConsumer() {
	if m.sim.IsPaused() {
		return
	}
	if m.State() != StateReady {
		return
	}

	maxPower := m.sink.GetMaxPower()
	m.settings.UpdateMaxPower(maxPower)

	// Without power accounting every charger still gets a zero deficit so it
	// can decide for itself what to simulate.
	powerDeficit := 0.0
	if m.sim.PowerRequired() {
		powerDeficit = maxPower - m.sink.GetPower()
	}

	report := TickReport{
		Deficit:   powerDeficit,
		Timestamp: time.Now(),
	}

	for _, charger := range m.renewableChargers {
		report.RenewablePower += charger.ProducePower(powerDeficit)
	}

	producedPower := report.RenewablePower

	if len(m.nonRenewableChargers) > 0 &&
		powerDeficit-producedPower > MinimalPowerValue &&
		powerDeficit > m.settings.MinimumEnergyDeficit() {
		report.NonRenewableEngaged = true
		for _, charger := range m.nonRenewableChargers {
			report.NonRenewablePower += charger.ProducePower(powerDeficit)
		}
	}

	report.ProducedPower = report.RenewablePower + report.NonRenewablePower
	report.RemainingDeficit = m.chargeConsumer(report.ProducedPower, powerDeficit, &report)

	m.mutex.Lock()
	m.lastReport = report
	m.mutex.Unlock()

	m.logger.Debugf("Recharge %s: deficit=%.2f renewable=%.2f non-renewable=%.2f accepted=%.2f",
		m.consumer.ID, powerDeficit, report.RenewablePower, report.NonRenewablePower, report.AcceptedPower)

	if m.metrics != nil {
		m.metrics.Observe(m.consumer.ID, report, m.sink.GetPower(), m.TotalReservePower())
	}
}

func (m *Manager) chargeConsumer(availablePower, powerDeficit float64, report *TickReport) float64 {
	if powerDeficit < MinimalPowerValue {
		return powerDeficit // no need to charge
	}
	if availablePower < MinimalPowerValue {
		return powerDeficit // no power available
	}

	availablePower *= m.settings.RechargePenalty()

	report.Committed = true
	report.EffectivePower = availablePower
	report.AcceptedPower = m.sink.AddEnergy(availablePower)

	return math.Max(0, powerDeficit-availablePower)
}

// TotalReservePower is the floored sum of every charger's reserve.
func (m *Manager) TotalReservePower() int {
	reserve := 0.0
	for _, charger := range m.Chargers() {
		reserve += charger.TotalReservePower()
	}
	return int(math.Floor(reserve))
}

func (m *Manager) LastReport() TickReport {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastReport
}

func (m *Manager) GetCharger(name string) (Charger, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	charger, ok := m.knownChargers[name]
	return charger, ok
}

// ChargerAs looks up a charger by name and asserts its concrete type.
func ChargerAs[T Charger](m *Manager, name string) (T, bool) {
	var zero T
	charger, ok := m.GetCharger(name)
	if !ok {
		return zero, false
	}
	typed, ok := charger.(T)
	return typed, ok
}

// Chargers lists renewable chargers first, then non-renewable ones, each in
// registration order.
func (m *Manager) Chargers() []Charger {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	chargers := make([]Charger, 0, len(m.renewableChargers)+len(m.nonRenewableChargers))
	chargers = append(chargers, m.renewableChargers...)
	chargers = append(chargers, m.nonRenewableChargers...)
	return chargers
}

func (m *Manager) ChargerCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.knownChargers)
}

func (m *Manager) RenewableCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.renewableChargers)
}

func (m *Manager) NonRenewableCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.nonRenewableChargers)
}

func (m *Manager) GetStatus() map[string]interface{} {
	report := m.LastReport()

	chargers := make([]map[string]interface{}, 0)
	for _, charger := range m.Chargers() {
		chargers = append(chargers, map[string]interface{}{
			"name":      charger.Name(),
			"renewable": charger.IsRenewable(),
			"reserve":   charger.TotalReservePower(),
		})
	}

	return map[string]interface{}{
		"consumer_id":    m.consumer.ID,
		"consumer_name":  m.consumer.Name,
		"state":          m.State().String(),
		"max_power":      m.sink.GetMaxPower(),
		"power":          m.sink.GetPower(),
		"reserve_power":  m.TotalReservePower(),
		"min_deficit":    m.settings.MinimumEnergyDeficit(),
		"penalty":        m.settings.RechargePenalty(),
		"chargers":       chargers,
		"last_deficit":   report.Deficit,
		"last_produced":  report.ProducedPower,
		"last_accepted":  report.AcceptedPower,
		"non_renewable":  report.NonRenewableEngaged,
		"last_tick_time": report.Timestamp,
	}
}
