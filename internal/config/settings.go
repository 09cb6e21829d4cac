package config

import (
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	MinDeficitThreshold         = 10.0
	MaxDeficitThreshold         = 99.0
	DefaultDeficitThreshold     = 95.0
	DefaultMinimumEnergyDeficit = 1140.0
)

const (
	auxConsoleEnabledKey = "aux_console_enabled"
	challengeModeKey     = "challenge_mode"
	deficitThresholdKey  = "deficit_threshold"
	chargerIconsKey      = "show_charger_icons"
	debugLogsEnabledKey  = "enable_debug_logs"
	energyDisplayKey     = "helm_energy_display"
)

type settingsData struct {
	AuxConsoleEnabled bool
	ChallengeMode     ChallengeLevel
	DeficitThreshold  float64
	ChargerIcons      ShowChargerIcons
	DebugLogsEnabled  bool
	EnergyDisplay     HelmEnergyDisplay
}

func defaultSettingsData() settingsData {
	return settingsData{
		AuxConsoleEnabled: true,
		ChallengeMode:     ChallengeEasy,
		DeficitThreshold:  DefaultDeficitThreshold,
		ChargerIcons:      IconsEverywhere,
		DebugLogsEnabled:  false,
		EnergyDisplay:     DisplayPowerCellPercentage,
	}
}

// Settings are the player-facing options read by the charge managers every
// tick. Setters persist in the background; a save never blocks a reader.
type Settings struct {
	path   string
	logger *logrus.Logger

	mutex   sync.RWMutex
	data    settingsData
	saveSeq uint64

	tracker *ThresholdTracker

	saveMutex sync.Mutex
	savedSeq  uint64
	pending   sync.WaitGroup
}

// NewSettings returns in-memory default settings that are never persisted.
func NewSettings(logger *logrus.Logger) *Settings {
	s := &Settings{
		logger: logger,
		data:   defaultSettingsData(),
	}
	s.tracker = newThresholdTracker(s.DeficitThreshold)
	return s
}

// LoadSettings reads the settings file at path. A missing or corrupt file is
// replaced with defaults right away.
func LoadSettings(path string, logger *logrus.Logger) *Settings {
	s := NewSettings(logger)
	if path == "" {
		return s
	}
	if filepath.Ext(path) == "" {
		path += ".yaml"
	}
	s.path = path

	data, err := readSettingsFile(path)
	if err != nil {
		logger.Errorf("Error loading settings from %s: %v", path, err)
		if err := s.write(0, s.data); err != nil {
			logger.Errorf("Failed to write default settings: %v", err)
		} else {
			logger.Infof("Default settings file created at %s", path)
		}
	} else {
		s.data = data
	}

	s.applyLogLevel(s.data.DebugLogsEnabled)
	return s
}

func readSettingsFile(path string) (settingsData, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return settingsData{}, err
	}

	data := defaultSettingsData()
	var err error

	if v.IsSet(auxConsoleEnabledKey) {
		if data.AuxConsoleEnabled, err = cast.ToBoolE(v.Get(auxConsoleEnabledKey)); err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", auxConsoleEnabledKey, err)
		}
	}
	if v.IsSet(challengeModeKey) {
		i, err := cast.ToIntE(v.Get(challengeModeKey))
		if err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", challengeModeKey, err)
		}
		if !ChallengeLevel(i).valid() {
			return settingsData{}, fmt.Errorf("%s: value %d out of range", challengeModeKey, i)
		}
		data.ChallengeMode = ChallengeLevel(i)
	}
	if v.IsSet(deficitThresholdKey) {
		f, err := cast.ToFloat64E(v.Get(deficitThresholdKey))
		if err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", deficitThresholdKey, err)
		}
		data.DeficitThreshold = normalizeThreshold(f)
	}
	if v.IsSet(chargerIconsKey) {
		i, err := cast.ToIntE(v.Get(chargerIconsKey))
		if err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", chargerIconsKey, err)
		}
		if !ShowChargerIcons(i).valid() {
			return settingsData{}, fmt.Errorf("%s: value %d out of range", chargerIconsKey, i)
		}
		data.ChargerIcons = ShowChargerIcons(i)
	}
	if v.IsSet(debugLogsEnabledKey) {
		if data.DebugLogsEnabled, err = cast.ToBoolE(v.Get(debugLogsEnabledKey)); err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", debugLogsEnabledKey, err)
		}
	}
	if v.IsSet(energyDisplayKey) {
		i, err := cast.ToIntE(v.Get(energyDisplayKey))
		if err != nil {
			return settingsData{}, fmt.Errorf("%s: %w", energyDisplayKey, err)
		}
		if !HelmEnergyDisplay(i).valid() {
			return settingsData{}, fmt.Errorf("%s: value %d out of range", energyDisplayKey, i)
		}
		data.EnergyDisplay = HelmEnergyDisplay(i)
	}

	return data, nil
}

func normalizeThreshold(value float64) float64 {
	value = math.RoundToEven(value)
	return math.Max(MinDeficitThreshold, math.Min(MaxDeficitThreshold, value))
}

func (s *Settings) Path() string {
	return s.path
}

func (s *Settings) AuxConsoleEnabled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.AuxConsoleEnabled
}

func (s *Settings) ChallengeLevel() ChallengeLevel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.ChallengeMode
}

func (s *Settings) DeficitThreshold() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.DeficitThreshold
}

func (s *Settings) ChargerIcons() ShowChargerIcons {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.ChargerIcons
}

func (s *Settings) DebugLogsEnabled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.DebugLogsEnabled
}

func (s *Settings) EnergyDisplay() HelmEnergyDisplay {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data.EnergyDisplay
}

func (s *Settings) ShowIconsWhilePiloting() bool {
	icons := s.ChargerIcons()
	return icons == IconsEverywhere || icons == IconsWhenPiloting
}

func (s *Settings) ShowIconsOnHoloDisplay() bool {
	icons := s.ChargerIcons()
	return icons == IconsEverywhere || icons == IconsOnHoloDisplay
}

func (s *Settings) RechargePenalty() float64 {
	return s.ChallengeLevel().Penalty()
}

// UpdateMaxPower recomputes MinimumEnergyDeficit for a single-consumer setup.
// Hosts with several consumers should use ForConsumer instead.
func (s *Settings) UpdateMaxPower(maxPower float64) {
	s.tracker.UpdateMaxPower(maxPower)
}

func (s *Settings) MinimumEnergyDeficit() float64 {
	return s.tracker.MinimumEnergyDeficit()
}

// ForConsumer returns a view of the settings with its own minimum deficit
// bookkeeping, so consumers with different capacities do not overwrite each
// other's threshold.
func (s *Settings) ForConsumer() *ConsumerSettings {
	return &ConsumerSettings{
		settings:         s,
		ThresholdTracker: newThresholdTracker(s.DeficitThreshold),
	}
}

func (s *Settings) SetAuxConsoleEnabled(enabled bool) {
	s.update(func(d *settingsData) { d.AuxConsoleEnabled = enabled })
}

func (s *Settings) SetChallengeLevel(level ChallengeLevel) error {
	if !level.valid() {
		return fmt.Errorf("invalid challenge level %d", level)
	}
	s.update(func(d *settingsData) { d.ChallengeMode = level })
	return nil
}

// SetDeficitThreshold rounds value to a whole percentage within [10,99].
func (s *Settings) SetDeficitThreshold(value float64) {
	rounded := normalizeThreshold(value)
	s.update(func(d *settingsData) { d.DeficitThreshold = rounded })
}

func (s *Settings) SetChargerIcons(icons ShowChargerIcons) error {
	if !icons.valid() {
		return fmt.Errorf("invalid charger icons option %d", icons)
	}
	s.update(func(d *settingsData) { d.ChargerIcons = icons })
	return nil
}

func (s *Settings) SetDebugLogsEnabled(enabled bool) {
	s.update(func(d *settingsData) { d.DebugLogsEnabled = enabled })
	s.applyLogLevel(enabled)
}

func (s *Settings) SetEnergyDisplay(display HelmEnergyDisplay) error {
	if !display.valid() {
		return fmt.Errorf("invalid energy display option %d", display)
	}
	s.update(func(d *settingsData) { d.EnergyDisplay = display })
	return nil
}

func (s *Settings) update(apply func(*settingsData)) {
	s.mutex.Lock()
	apply(&s.data)
	s.saveSeq++
	seq, snapshot := s.saveSeq, s.data
	s.mutex.Unlock()

	s.saveAsync(seq, snapshot)
}

// saveAsync writes the snapshot from a detached goroutine.
func (s *Settings) saveAsync(seq uint64, snapshot settingsData) {
	if s.path == "" {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.write(seq, snapshot); err != nil {
			s.logger.Errorf("Failed to save settings: %v", err)
		}
	}()
}

// WaitForSaves blocks until every save started so far has finished.
func (s *Settings) WaitForSaves() {
	s.pending.Wait()
}

func (s *Settings) write(seq uint64, data settingsData) error {
	s.saveMutex.Lock()
	defer s.saveMutex.Unlock()

	// An older snapshot finishing late must not overwrite a newer one.
	if seq != 0 && seq <= s.savedSeq {
		return nil
	}

	v := viper.New()
	v.Set(auxConsoleEnabledKey, data.AuxConsoleEnabled)
	v.Set(challengeModeKey, int(data.ChallengeMode))
	v.Set(deficitThresholdKey, data.DeficitThreshold)
	v.Set(chargerIconsKey, int(data.ChargerIcons))
	v.Set(debugLogsEnabledKey, data.DebugLogsEnabled)
	v.Set(energyDisplayKey, int(data.EnergyDisplay))

	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("error writing settings file %s: %w", s.path, err)
	}
	if seq > s.savedSeq {
		s.savedSeq = seq
	}
	return nil
}

// Watch reloads the settings whenever the file is edited outside the
// process.
func (s *Settings) Watch() {
	if s.path == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s.reload()
	})
	v.WatchConfig()
	s.logger.Infof("Watching settings file %s", s.path)
}

func (s *Settings) reload() {
	data, err := readSettingsFile(s.path)
	if err != nil {
		s.logger.Warnf("Ignoring unreadable settings file: %v", err)
		return
	}

	s.saveMutex.Lock()
	defer s.saveMutex.Unlock()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Our own pending writes win over whatever is on disk.
	if s.saveSeq > s.savedSeq || data == s.data {
		return
	}

	s.data = data
	s.applyLogLevel(data.DebugLogsEnabled)
	s.logger.Infof("Settings reloaded: challenge=%s threshold=%.0f%%", data.ChallengeMode, data.DeficitThreshold)
}

func (s *Settings) applyLogLevel(debug bool) {
	if s.logger == nil {
		return
	}
	if debug {
		s.logger.SetLevel(logrus.DebugLevel)
	} else if s.logger.GetLevel() == logrus.DebugLevel {
		s.logger.SetLevel(logrus.InfoLevel)
	}
}

// ConsumerSettings is the per-consumer view handed to a charge manager.
type ConsumerSettings struct {
	settings *Settings
	*ThresholdTracker
}

func (cs *ConsumerSettings) RechargePenalty() float64 {
	return cs.settings.RechargePenalty()
}

// ThresholdTracker caches the minimum energy deficit derived from the
// deficit threshold and the consumer's max power.
type ThresholdTracker struct {
	threshold func() float64

	mutex                sync.Mutex
	known                bool
	maxPower             float64
	usedThreshold        float64
	minimumEnergyDeficit float64
}

func newThresholdTracker(threshold func() float64) *ThresholdTracker {
	return &ThresholdTracker{
		threshold:            threshold,
		minimumEnergyDeficit: DefaultMinimumEnergyDeficit,
	}
}

// UpdateMaxPower is a no-op unless maxPower or the threshold changed.
func (t *ThresholdTracker) UpdateMaxPower(maxPower float64) {
	threshold := t.threshold()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.known && t.maxPower == maxPower && t.usedThreshold == threshold {
		return
	}

	t.known = true
	t.maxPower = maxPower
	t.usedThreshold = threshold
	t.minimumEnergyDeficit = ComputeMinimumEnergyDeficit(maxPower, threshold)
}

func (t *ThresholdTracker) MinimumEnergyDeficit() float64 {
	threshold := t.threshold()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.known && t.usedThreshold != threshold {
		t.usedThreshold = threshold
		t.minimumEnergyDeficit = ComputeMinimumEnergyDeficit(t.maxPower, threshold)
	}
	return t.minimumEnergyDeficit
}

func ComputeMinimumEnergyDeficit(maxPower, thresholdPercent float64) float64 {
	return math.RoundToEven(maxPower - maxPower*thresholdPercent/100)
}
