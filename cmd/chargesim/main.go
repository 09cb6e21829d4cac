package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cyclops-power/internal/chargers"
	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"
	"cyclops-power/internal/simulation"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// chargesim steps the recharge engine by hand, without broker or HTTP server.
func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logs")
	pflag.Parse()

	fmt.Println("🔋 Recharge Engine Interactive Tester")
	fmt.Println("=====================================")
	fmt.Println()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	settings := config.NewSettings(logger)
	registry := charging.NewRegistry(logger)
	chargers.RegisterDefaults(registry, cfg.Chargers, logger)
	directory := charging.NewDirectory(registry, func(*models.Consumer) charging.ConfigProvider {
		return settings.ForConsumer()
	}, logger)

	sim := models.NewSimulationState()
	cc := cfg.Consumers[0]
	env := models.NewEnvironment(0)
	consumer := models.NewConsumer(cc.ID, cc.Name, models.NewPowerRelay(cc.MaxPower, cc.InitialPower), sim, env)
	consumer.LoadPerTick = cc.LoadPerTick

	manager, err := directory.GetOrCreateManager(consumer)
	if err != nil {
		logger.Fatalf("Failed to create manager: %v", err)
	}
	if _, err := manager.Initialize(); err != nil {
		logger.Fatalf("Failed to initialize chargers: %v", err)
	}

	driver := simulation.NewDriver(directory, time.Second, logger)
	driver.AddTickCallback(func(m *charging.Manager, report charging.TickReport) {
		showReport(m, report, driver.Ticks())
	})

	fmt.Printf("📋 Consumer %s: %.0f/%.0f, %d charger(s)\n", consumer.Name, consumer.Relay.GetPower(), consumer.Relay.GetMaxPower(), manager.ChargerCount())
	for _, charger := range manager.Chargers() {
		fmt.Printf("   - %s (renewable: %v)\n", charger.Name(), charger.IsRenewable())
	}
	showHelp()

	now := time.Now()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("\n[Tick %d | Power: %.1f | Threshold: %.0f%% | %s] > ",
			driver.Ticks(), consumer.Relay.GetPower(), settings.DeficitThreshold(), settings.ChallengeLevel())

		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		arg := func() (float64, bool) {
			if len(fields) < 2 {
				fmt.Println("❌ Missing value")
				return 0, false
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Printf("❌ Invalid value %q\n", fields[1])
				return 0, false
			}
			return v, true
		}

		switch fields[0] {
		case "quit", "q":
			fmt.Println("👋 Bye!")
			return

		case "help", "h":
			showHelp()

		case "tick", "t":
			n := 1
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil && v > 0 {
					n = v
				}
			}
			for i := 0; i < n; i++ {
				driver.Step()
			}

		case "light":
			if v, ok := arg(); ok {
				now = now.Add(time.Second)
				env.UpdateLight(v, now)
			}

		case "temp":
			if v, ok := arg(); ok {
				now = now.Add(time.Second)
				env.UpdateTemperature(v, now)
			}

		case "depth":
			if v, ok := arg(); ok {
				now = now.Add(time.Second)
				env.UpdateDepth(v, now)
			}

		case "drain":
			if v, ok := arg(); ok {
				drawn := consumer.Relay.ConsumeEnergy(v)
				fmt.Printf("🔻 Drained %.1f\n", drawn)
			}

		case "threshold":
			if v, ok := arg(); ok {
				settings.SetDeficitThreshold(v)
				fmt.Printf("🎯 Threshold %.0f%%, minimum deficit %.1f\n", settings.DeficitThreshold(), settings.MinimumEnergyDeficit())
			}

		case "challenge":
			if len(fields) < 2 {
				fmt.Println("❌ Missing level (easy, normal, hard)")
				continue
			}
			level, err := config.ParseChallengeLevel(fields[1])
			if err == nil {
				err = settings.SetChallengeLevel(level)
			}
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			fmt.Printf("⚖️  Challenge %s (penalty %.2f)\n", level, level.Penalty())

		case "pause":
			sim.SetTimeScale(0)
			fmt.Println("⏸️  Paused")

		case "resume":
			sim.SetTimeScale(1)
			fmt.Println("▶️  Resumed")

		case "idle":
			sim.SetRequiresPower(false)
			fmt.Println("💤 Consumer no longer requires power")

		case "active":
			sim.SetRequiresPower(true)
			fmt.Println("⚡ Consumer requires power")

		case "rod":
			reactor, ok := charging.ChargerAs[*chargers.NuclearReactor](manager, chargers.ReactorChargerName)
			if !ok {
				fmt.Println("❌ No reactor installed")
				continue
			}
			removed := reactor.RemoveDepleted()
			slot, err := reactor.AddRod(cfg.Chargers.Reactor.RodCharge)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			fmt.Printf("☢️  Removed %d depleted rod(s), inserted rod in slot %d\n", removed, slot)

		case "status":
			showStatus(manager, env)

		default:
			fmt.Println("❌ Unknown command. Type 'help' to list commands.")
		}
	}
}

func showReport(manager *charging.Manager, report charging.TickReport, tick int64) {
	relay := manager.Consumer().Relay
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📊 Tick %d\n", tick)
	fmt.Printf("   Deficit:        %8.2f\n", report.Deficit)
	fmt.Printf("   Renewable:      %8.2f\n", report.RenewablePower)
	if report.NonRenewableEngaged {
		fmt.Printf("   Non renewable:  %8.2f ✅ engaged\n", report.NonRenewablePower)
	} else {
		fmt.Printf("   Non renewable:  %8.2f ❌ idle\n", report.NonRenewablePower)
	}
	if report.Committed {
		fmt.Printf("   Effective:      %8.2f (accepted %.2f)\n", report.EffectivePower, report.AcceptedPower)
	} else {
		fmt.Printf("   Nothing committed\n")
	}
	fmt.Printf("   Remaining:      %8.2f\n", report.RemainingDeficit)
	fmt.Printf("   Stored:         %8.2f / %.0f (reserve %d)\n", relay.GetPower(), relay.GetMaxPower(), manager.TotalReservePower())
}

func showStatus(manager *charging.Manager, env *models.Environment) {
	fmt.Println("📈 Engine state")
	for key, value := range manager.GetStatus() {
		fmt.Printf("   %-22s %v\n", key+":", value)
	}
	fmt.Println("🌊 Environment")
	for kind, reading := range env.Snapshot() {
		fmt.Printf("   %-22s %.2f (raw %.2f)\n", kind+":", reading.Value, reading.Raw)
	}
}

func showHelp() {
	fmt.Println()
	fmt.Println("🎮 Commands:")
	fmt.Println("   tick [n]          - Run n recharge ticks (default 1)")
	fmt.Println("   light <0..1>      - Set the light level")
	fmt.Println("   temp <celsius>    - Set the water temperature")
	fmt.Println("   depth <meters>    - Set the depth")
	fmt.Println("   drain <amount>    - Draw power from the consumer")
	fmt.Println("   threshold <10-99> - Set the deficit threshold")
	fmt.Println("   challenge <level> - easy, normal or hard")
	fmt.Println("   pause / resume    - Freeze or resume time")
	fmt.Println("   idle / active     - Toggle whether power is required")
	fmt.Println("   rod               - Swap depleted reactor rods for a fresh one")
	fmt.Println("   status            - Show engine state")
	fmt.Println("   quit              - Exit")
}
