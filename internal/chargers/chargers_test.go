package chargers

import (
	"math"
	"sync"
	"testing"
	"time"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func litEnvironment(light, depth, temp float64) *models.Environment {
	env := models.NewEnvironment(0)
	now := time.Now()
	env.UpdateLight(light, now)
	env.UpdateDepth(depth, now)
	env.UpdateTemperature(temp, now)
	return env
}

func TestSolarCharger_ProducePower(t *testing.T) {
	cfg := config.SolarConfig{Enabled: true, MaxRate: 2, MaxDepth: 200}

	tests := []struct {
		name    string
		light   float64
		depth   float64
		deficit float64
		want    float64
	}{
		{"full sun at surface", 1, 0, 100, 2},
		{"half depth", 1, 100, 100, 1},
		{"below max depth", 1, 250, 100, 0},
		{"dim light", 0.25, 0, 100, 0.5},
		{"deficit caps output", 1, 0, 0.5, 0.5},
		{"zero deficit", 1, 0, 0, 0},
		{"negative deficit", 1, 0, -10, 0},
		{"invalid deficit", 1, 0, math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solar := NewSolarCharger(litEnvironment(tt.light, tt.depth, 20), cfg, testLogger())
			assert.InDelta(t, tt.want, solar.ProducePower(tt.deficit), 1e-9)
			assert.True(t, solar.IsRenewable())
			assert.Equal(t, 0.0, solar.TotalReservePower())
		})
	}
}

func TestSolarCharger_Mk2BanksSurplus(t *testing.T) {
	cfg := config.SolarConfig{Enabled: true, MaxRate: 10, MaxDepth: 200, Mk2: true, BatteryCapacity: 100}
	env := litEnvironment(1, 0, 20)
	solar := NewSolarCharger(env, cfg, testLogger())

	assert.True(t, solar.IsMk2())
	assert.InDelta(t, 10*charging.Mk2ChargeRateModifier, solar.SolarRate(), 1e-9)

	// 11 collected, 4 used, 7 banked.
	assert.InDelta(t, 4.0, solar.ProducePower(4), 1e-9)
	assert.InDelta(t, 7.0, solar.TotalReservePower(), 1e-9)

	// Nothing needed: everything is banked.
	assert.Equal(t, 0.0, solar.ProducePower(0))
	assert.InDelta(t, 18.0, solar.TotalReservePower(), 1e-9)

	// In the dark the battery drains capacity*BatteryDrainRate per tick.
	env.UpdateLight(0, time.Now())
	assert.InDelta(t, 1.0, solar.ProducePower(50), 1e-9)
	assert.InDelta(t, 17.0, solar.Battery().Charge, 1e-9)
}

func TestThermalCharger_ProducePower(t *testing.T) {
	cfg := config.ThermalConfig{Enabled: true, MaxRate: 1.5, MinTemperature: 35, MaxTemperature: 100}

	tests := []struct {
		name    string
		temp    float64
		deficit float64
		want    float64
	}{
		{"cold water", 20, 100, 0},
		{"at minimum", 35, 100, 0},
		{"half way", 67.5, 100, 0.75},
		{"vent", 120, 100, 1.5},
		{"deficit caps output", 100, 1, 1},
		{"zero deficit", 100, 0, 0},
		{"negative deficit", 100, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thermal := NewThermalCharger(litEnvironment(0, 0, tt.temp), cfg, testLogger())
			assert.InDelta(t, tt.want, thermal.ProducePower(tt.deficit), 1e-9)
			assert.True(t, thermal.IsRenewable())
			assert.Equal(t, 0.0, thermal.TotalReservePower())
		})
	}
}

func TestNuclearReactor_ProducePower(t *testing.T) {
	cfg := config.ReactorConfig{Enabled: true, Slots: 4, Rods: 2, RodCharge: 10, PerRodRate: 4, DrainRate: 1}
	reactor := NewNuclearReactor(cfg, testLogger())

	assert.False(t, reactor.IsRenewable())
	assert.Equal(t, 2, reactor.ActiveRods())
	assert.Equal(t, 20.0, reactor.TotalReservePower())

	assert.Equal(t, 0.0, reactor.ProducePower(0))
	assert.Equal(t, 0.0, reactor.ProducePower(-5))
	assert.Equal(t, 20.0, reactor.TotalReservePower())

	// Two rods at 4 each.
	assert.InDelta(t, 8.0, reactor.ProducePower(100), 1e-9)
	assert.InDelta(t, 12.0, reactor.TotalReservePower(), 1e-9)

	// The deficit is shared across rods in slot order.
	assert.InDelta(t, 5.0, reactor.ProducePower(5), 1e-9)
	slots := reactor.Slots()
	assert.InDelta(t, 2.0, slots[0].Charge, 1e-9)
	assert.InDelta(t, 5.0, slots[1].Charge, 1e-9)

	// The first rod runs dry and is marked depleted.
	assert.InDelta(t, 6.0, reactor.ProducePower(100), 1e-9)
	slots = reactor.Slots()
	assert.Equal(t, RodDepleted, slots[0].Rod)
	assert.Equal(t, 0.0, slots[0].Charge)
	assert.Equal(t, 1, reactor.ActiveRods())
}

func TestNuclearReactor_RodManagement(t *testing.T) {
	cfg := config.ReactorConfig{Enabled: true, Slots: 2, Rods: 2, RodCharge: 1, PerRodRate: 5, DrainRate: 1}
	reactor := NewNuclearReactor(cfg, testLogger())

	_, err := reactor.AddRod(10)
	assert.ErrorIs(t, err, ErrNoFreeSlot)

	assert.InDelta(t, 2.0, reactor.ProducePower(10), 1e-9)
	assert.Equal(t, 0, reactor.ActiveRods())
	assert.Equal(t, 0.0, reactor.ProducePower(10))

	assert.Equal(t, 2, reactor.RemoveDepleted())
	slot, err := reactor.AddRod(10)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, RodReactor, reactor.Slots()[0].Rod)
	assert.Equal(t, EmptySlotCharge, reactor.Slots()[1].Charge)
}

func TestNuclearReactor_DrainRate(t *testing.T) {
	cfg := config.ReactorConfig{Enabled: true, Slots: 1, Rods: 1, RodCharge: 10, PerRodRate: 4, DrainRate: 2}
	reactor := NewNuclearReactor(cfg, testLogger())

	assert.Equal(t, 5.0, reactor.TotalReservePower())
	assert.InDelta(t, 4.0, reactor.ProducePower(100), 1e-9)
	assert.InDelta(t, 1.0, reactor.ProducePower(100), 1e-9)
	assert.Equal(t, 0.0, reactor.TotalReservePower())
}

func TestBatteryBank_ProducePower(t *testing.T) {
	cfg := config.BatteryConfig{Enabled: true, Count: 2, Capacity: 3, MaxRate: 2}
	bank := NewBatteryBank(cfg, testLogger())

	assert.False(t, bank.IsRenewable())
	assert.Equal(t, 6.0, bank.TotalReservePower())
	assert.Equal(t, 0.0, bank.ProducePower(0))

	assert.Equal(t, 2.0, bank.ProducePower(100))
	// Spills over into the second battery once the first runs out.
	assert.Equal(t, 2.0, bank.ProducePower(100))
	batteries := bank.Batteries()
	assert.Equal(t, 0.0, batteries[0].Charge)
	assert.Equal(t, 2.0, batteries[1].Charge)

	assert.Equal(t, 0.5, bank.ProducePower(0.5))
	assert.Equal(t, 1.5, bank.TotalReservePower())

	bank.AddBattery(Battery{Charge: 1, Capacity: 3})
	assert.Equal(t, 2.5, bank.TotalReservePower())
}

func TestBattery_StoreAndDraw(t *testing.T) {
	b := Battery{Capacity: 10}

	assert.Equal(t, 0.0, b.Draw(5))
	assert.Equal(t, 8.0, b.Store(8))
	assert.Equal(t, 2.0, b.Store(8))
	assert.Equal(t, 0.0, b.Store(1))
	assert.Equal(t, 0.0, b.Store(-1))
	assert.Equal(t, 10.0, b.Draw(20))
	assert.Equal(t, 0.0, b.Charge)
}

func TestRegisterDefaults(t *testing.T) {
	logger := testLogger()
	registry := charging.NewRegistry(logger)

	cfg := config.ChargersConfig{
		Solar:   config.SolarConfig{Enabled: true, MaxRate: 1, MaxDepth: 200},
		Thermal: config.ThermalConfig{Enabled: true, MaxRate: 1.5, MinTemperature: 35, MaxTemperature: 100},
		Reactor: config.ReactorConfig{Enabled: true, Slots: 4, Rods: 2, RodCharge: 100, PerRodRate: 1, DrainRate: 1},
		Battery: config.BatteryConfig{Enabled: false},
	}
	RegisterDefaults(registry, cfg, logger)
	assert.Equal(t, 3, registry.Len())

	consumer := models.NewConsumer("cyclops", "Cyclops", models.NewPowerRelay(1000, 0), nil, nil)
	manager, err := charging.NewManager(consumer, registry, config.NewSettings(logger).ForConsumer(), logger)
	require.NoError(t, err)

	ok, err := manager.Initialize()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, manager.RenewableCount())
	assert.Equal(t, 1, manager.NonRenewableCount())

	reactor, ok := charging.ChargerAs[*NuclearReactor](manager, ReactorChargerName)
	require.True(t, ok)
	assert.Equal(t, 2, reactor.ActiveRods())
}

func TestFactories_RejectInvalidConfig(t *testing.T) {
	logger := testLogger()
	consumer := models.NewConsumer("cyclops", "Cyclops", models.NewPowerRelay(1000, 0), nil, nil)

	_, err := ThermalFactory(config.ThermalConfig{MinTemperature: 50, MaxTemperature: 50}, logger).NewCharger(consumer)
	assert.Error(t, err)

	_, err = ReactorFactory(config.ReactorConfig{Slots: 0}, logger).NewCharger(consumer)
	assert.Error(t, err)

	_, err = ReactorFactory(config.ReactorConfig{Slots: 1, Rods: 2}, logger).NewCharger(consumer)
	assert.Error(t, err)

	_, err = BatteryFactory(config.BatteryConfig{Count: -1}, logger).NewCharger(consumer)
	assert.Error(t, err)

	_, err = SolarFactory(config.SolarConfig{MaxRate: -1}, logger).NewCharger(consumer)
	assert.Error(t, err)
}

func TestChargers_ReserveReadDuringTicks(t *testing.T) {
	logger := testLogger()
	registry := charging.NewRegistry(logger)
	registry.Register(SolarFactory(config.SolarConfig{Enabled: true, MaxRate: 2, MaxDepth: 200, Mk2: true, BatteryCapacity: 100}, logger), "test")
	registry.Register(BatteryFactory(config.BatteryConfig{Enabled: true, Count: 2, Capacity: 1e9, MaxRate: 50}, logger), "test")

	consumer := models.NewConsumer("cyclops", "Cyclops", models.NewPowerRelay(1000, 0), nil, litEnvironment(0.5, 0, 20))
	manager, err := charging.NewManager(consumer, registry, config.NewSettings(logger).ForConsumer(), logger)
	require.NoError(t, err)
	_, err = manager.Initialize()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			consumer.Relay.ConsumeEnergy(1000)
			manager.RechargeConsumer()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			status := manager.GetStatus()
			assert.NotNil(t, status)
			manager.TotalReservePower()
		}
	}()
	wg.Wait()

	bank, ok := charging.ChargerAs[*BatteryBank](manager, BatteryBankName)
	require.True(t, ok)
	assert.Less(t, bank.TotalReservePower(), 2e9)
	assert.Len(t, bank.Batteries(), 2)
}
