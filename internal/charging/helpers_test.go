package charging

import (
	"errors"
	"sync"
	"testing"

	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

type fakeCharger struct {
	name      string
	renewable bool
	output    float64
	reserve   float64

	mutex sync.Mutex
	calls []float64
}

func (f *fakeCharger) Name() string      { return f.name }
func (f *fakeCharger) IsRenewable() bool { return f.renewable }

func (f *fakeCharger) ProducePower(deficit float64) float64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, deficit)
	if deficit <= 0 {
		return 0
	}
	return f.output
}

func (f *fakeCharger) TotalReservePower() float64 { return f.reserve }

func (f *fakeCharger) Calls() []float64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]float64(nil), f.calls...)
}

func chargerFactory(c Charger) ChargerFactory {
	return NewFactory(func(*models.Consumer) (Charger, error) {
		return c, nil
	})
}

func failingFactory(msg string) ChargerFactory {
	return NewFactory(func(*models.Consumer) (Charger, error) {
		return nil, errors.New(msg)
	})
}

type stubProvider struct {
	penalty     float64
	minDeficit  float64
	maxPowerSet []float64
}

func (s *stubProvider) RechargePenalty() float64 { return s.penalty }
func (s *stubProvider) UpdateMaxPower(maxPower float64) {
	s.maxPowerSet = append(s.maxPowerSet, maxPower)
}
func (s *stubProvider) MinimumEnergyDeficit() float64 { return s.minDeficit }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Disable logs for tests
	return logger
}

func newTestConsumer(id string, maxPower, power float64) *models.Consumer {
	return models.NewConsumer(id, id, models.NewPowerRelay(maxPower, power), models.NewSimulationState(), models.NewEnvironment(0))
}

func newReadyManager(t *testing.T, consumer *models.Consumer, provider ConfigProvider, chargers ...Charger) *Manager {
	t.Helper()

	logger := testLogger()
	registry := NewRegistry(logger)
	for _, c := range chargers {
		registry.Register(chargerFactory(c), "test/"+c.Name())
	}

	if provider == nil {
		provider = config.NewSettings(logger).ForConsumer()
	}

	m, err := NewManager(consumer, registry, provider, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if ok, err := m.Initialize(); !ok || err != nil {
		t.Fatalf("Initialize: ok=%v err=%v", ok, err)
	}
	return m
}
