package simulation

import (
	"context"
	"time"

	"cyclops-power/internal/chargers"
	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Driver", func() {
	var (
		logger    *logrus.Logger
		settings  *config.Settings
		directory *charging.Directory
		env       *models.Environment
		sim       *models.SimulationState
		consumer  *models.Consumer
		manager   *charging.Manager
		driver    *Driver
		reports   []charging.TickReport
	)

	chargersConfig := config.ChargersConfig{
		Solar:   config.SolarConfig{Enabled: true, MaxRate: 10, MaxDepth: 200},
		Thermal: config.ThermalConfig{Enabled: true, MaxRate: 5, MinTemperature: 35, MaxTemperature: 100},
		Reactor: config.ReactorConfig{Enabled: true, Slots: 4, Rods: 2, RodCharge: 1000, PerRodRate: 20, DrainRate: 1},
	}

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)

		settings = config.NewSettings(logger)
		registry := charging.NewRegistry(logger)
		chargers.RegisterDefaults(registry, chargersConfig, logger)
		directory = charging.NewDirectory(registry, func(*models.Consumer) charging.ConfigProvider {
			return settings.ForConsumer()
		}, logger)

		sim = models.NewSimulationState()
		env = models.NewEnvironment(0)
		consumer = models.NewConsumer("cyclops", "Cyclops", models.NewPowerRelay(1000, 1000), sim, env)

		var err error
		manager, err = directory.GetOrCreateManager(consumer)
		Expect(err).NotTo(HaveOccurred())
		ok, err := manager.Initialize()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		driver = NewDriver(directory, 10*time.Millisecond, logger)
		reports = nil
		driver.AddTickCallback(func(_ *charging.Manager, report charging.TickReport) {
			reports = append(reports, report)
		})
	})

	Context("at the surface in daylight", func() {
		BeforeEach(func() {
			env.UpdateLight(1, time.Now())
			consumer.Relay.ConsumeEnergy(30)
		})

		It("recharges from solar only", func() {
			driver.Step()

			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Deficit).To(BeNumerically("~", 30, 1e-9))
			Expect(reports[0].RenewablePower).To(BeNumerically("~", 10, 1e-9))
			Expect(reports[0].NonRenewableEngaged).To(BeFalse())
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 980, 1e-9))
		})

		It("tops the consumer up over several ticks", func() {
			for i := 0; i < 3; i++ {
				driver.Step()
			}
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 1000, 1e-9))
			Expect(driver.Ticks()).To(Equal(int64(3)))
		})
	})

	Context("deep in the dark", func() {
		BeforeEach(func() {
			env.UpdateDepth(500, time.Now())
		})

		It("keeps the reactor idle for a small deficit", func() {
			consumer.Relay.ConsumeEnergy(40)
			driver.Step()

			Expect(reports[0].NonRenewableEngaged).To(BeFalse())
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 960, 1e-9))
		})

		It("engages the reactor once the deficit passes the threshold", func() {
			consumer.Relay.ConsumeEnergy(100)
			reactor, ok := charging.ChargerAs[*chargers.NuclearReactor](manager, chargers.ReactorChargerName)
			Expect(ok).To(BeTrue())
			before := reactor.TotalReservePower()

			driver.Step()

			Expect(reports[0].NonRenewableEngaged).To(BeTrue())
			Expect(reports[0].NonRenewablePower).To(BeNumerically("~", 40, 1e-9))
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 940, 1e-9))
			Expect(reactor.TotalReservePower()).To(BeNumerically("~", before-40, 1e-9))
		})

		It("applies the challenge penalty", func() {
			Expect(settings.SetChallengeLevel(config.ChallengeHard)).To(Succeed())
			consumer.Relay.ConsumeEnergy(100)

			driver.Step()

			Expect(reports[0].EffectivePower).To(BeNumerically("~", 20, 1e-9))
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 920, 1e-9))
		})

		It("mixes thermal and reactor power near a vent", func() {
			env.UpdateTemperature(100, time.Now())
			consumer.Relay.ConsumeEnergy(100)

			driver.Step()

			Expect(reports[0].RenewablePower).To(BeNumerically("~", 5, 1e-9))
			Expect(reports[0].NonRenewablePower).To(BeNumerically("~", 40, 1e-9))
			Expect(reports[0].RemainingDeficit).To(BeNumerically("~", 55, 1e-9))
		})
	})

	Context("with a load", func() {
		BeforeEach(func() {
			consumer.LoadPerTick = 5
		})

		It("drains before recharging, scaled by the time scale", func() {
			sim.SetTimeScale(2)
			driver.Step()

			Expect(reports[0].Deficit).To(BeNumerically("~", 10, 1e-9))
			Expect(consumer.Relay.GetPower()).To(BeNumerically("~", 990, 1e-9))
		})

		It("does not drain while power is not required", func() {
			sim.SetRequiresPower(false)
			driver.Step()

			Expect(reports[0].Deficit).To(BeZero())
			Expect(consumer.Relay.GetPower()).To(BeNumerically("==", 1000))
		})
	})

	Context("when paused", func() {
		It("skips consumers entirely", func() {
			consumer.LoadPerTick = 5
			sim.SetTimeScale(0)
			driver.Step()

			Expect(reports).To(BeEmpty())
			Expect(consumer.Relay.GetPower()).To(BeNumerically("==", 1000))
			Expect(driver.Ticks()).To(Equal(int64(1)))
		})
	})

	Context("with several consumers", func() {
		It("ticks each of them in creation order", func() {
			seamoth := models.NewConsumer("seamoth", "Seamoth", models.NewPowerRelay(200, 100), sim, models.NewEnvironment(0))
			other, err := directory.GetOrCreateManager(seamoth)
			Expect(err).NotTo(HaveOccurred())
			_, err = other.Initialize()
			Expect(err).NotTo(HaveOccurred())

			var order []string
			driver.AddTickCallback(func(m *charging.Manager, _ charging.TickReport) {
				order = append(order, m.Consumer().ID)
			})
			driver.Step()

			Expect(order).To(Equal([]string{"cyclops", "seamoth"}))
			// Seamoth's deficit of 100 is above its own minimum of 10.
			Expect(reports[1].NonRenewableEngaged).To(BeTrue())
		})
	})

	Describe("Start", func() {
		It("ticks until the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				driver.Start(ctx)
			}()

			Eventually(driver.Ticks).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
