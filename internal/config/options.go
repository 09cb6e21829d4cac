package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ChallengeLevel selects the recharge penalty.
type ChallengeLevel int

const (
	ChallengeEasy ChallengeLevel = iota
	ChallengeNormal
	ChallengeHard
)

func (c ChallengeLevel) String() string {
	switch c {
	case ChallengeEasy:
		return "Easy"
	case ChallengeNormal:
		return "Normal"
	case ChallengeHard:
		return "Hard"
	}
	return "unknown"
}

// Penalty is the fraction of produced power that reaches the relay.
func (c ChallengeLevel) Penalty() float64 {
	switch c {
	case ChallengeHard:
		return 0.50
	case ChallengeNormal:
		return 0.75
	default:
		return 1.0
	}
}

func (c ChallengeLevel) valid() bool {
	return c >= ChallengeEasy && c <= ChallengeHard
}

// ParseChallengeLevel accepts a level name (case insensitive) or its index.
func ParseChallengeLevel(s string) (ChallengeLevel, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		level := ChallengeLevel(i)
		if !level.valid() {
			return ChallengeEasy, fmt.Errorf("challenge level %d out of range", i)
		}
		return level, nil
	}

	for level := ChallengeEasy; level <= ChallengeHard; level++ {
		if strings.EqualFold(level.String(), s) {
			return level, nil
		}
	}
	return ChallengeEasy, fmt.Errorf("unknown challenge level %q", s)
}

type ShowChargerIcons int

const (
	IconsNever ShowChargerIcons = iota
	IconsWhenPiloting
	IconsOnHoloDisplay
	IconsEverywhere
)

func (s ShowChargerIcons) String() string {
	switch s {
	case IconsNever:
		return "Never"
	case IconsWhenPiloting:
		return "WhenPiloting"
	case IconsOnHoloDisplay:
		return "OnHoloDisplay"
	case IconsEverywhere:
		return "Everywhere"
	}
	return "unknown"
}

func (s ShowChargerIcons) valid() bool {
	return s >= IconsNever && s <= IconsEverywhere
}

type HelmEnergyDisplay int

const (
	DisplayPowerCellPercentage HelmEnergyDisplay = iota
	DisplayPowerCellAmount
	DisplayPercentageOverPowerCells
	DisplayCombinedAmount
)

func (h HelmEnergyDisplay) String() string {
	switch h {
	case DisplayPowerCellPercentage:
		return "PowerCellPercentage"
	case DisplayPowerCellAmount:
		return "PowerCellAmount"
	case DisplayPercentageOverPowerCells:
		return "PercentageOverPowerCells"
	case DisplayCombinedAmount:
		return "CombinedAmount"
	}
	return "unknown"
}

func (h HelmEnergyDisplay) valid() bool {
	return h >= DisplayPowerCellPercentage && h <= DisplayCombinedAmount
}
