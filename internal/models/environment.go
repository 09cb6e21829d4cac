package models

import (
	"math"
	"sync"
	"time"
)

// Reading is a smoothed sensor value.
type Reading struct {
	Value     float64
	Raw       float64
	Timestamp time.Time
	valid     bool
}

func (r Reading) Valid() bool {
	return r.valid
}

// Environment holds the surroundings of a consumer as seen by its chargers.
// Values are exponentially smoothed with time constant SmoothingFactor
// (seconds); a zero factor disables smoothing.
type Environment struct {
	SmoothingFactor float64

	light       Reading
	temperature Reading
	depth       Reading
	mutex       sync.RWMutex
}

func NewEnvironment(smoothingFactor float64) *Environment {
	return &Environment{
		SmoothingFactor: smoothingFactor,
	}
}

func (e *Environment) UpdateLight(value float64, ts time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.light = e.smooth(e.light, clamp01(value), ts)
}

func (e *Environment) UpdateTemperature(value float64, ts time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.temperature = e.smooth(e.temperature, value, ts)
}

func (e *Environment) UpdateDepth(value float64, ts time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if value < 0 {
		value = 0
	}
	e.depth = e.smooth(e.depth, value, ts)
}

// Light returns the light level in [0,1].
func (e *Environment) Light() float64 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.light.Value
}

// Temperature returns the water temperature in °C.
func (e *Environment) Temperature() float64 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.temperature.Value
}

// Depth returns the depth in meters.
func (e *Environment) Depth() float64 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.depth.Value
}

func (e *Environment) Snapshot() map[string]Reading {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return map[string]Reading{
		"light":       e.light,
		"temperature": e.temperature,
		"depth":       e.depth,
	}
}

func (e *Environment) smooth(prev Reading, value float64, ts time.Time) Reading {
	next := Reading{Raw: value, Timestamp: ts, valid: true}

	// First sample, or smoothing disabled: take the value as is.
	if !prev.valid || e.SmoothingFactor <= 0 {
		next.Value = value
		return next
	}

	dt := ts.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		next.Value = value
		return next
	}

	alpha := 1.0 - math.Exp(-dt/e.SmoothingFactor)
	next.Value = alpha*value + (1-alpha)*prev.Value
	return next
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
