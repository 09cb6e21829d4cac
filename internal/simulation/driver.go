package simulation

import (
	"context"
	"sync"
	"time"

	"cyclops-power/internal/charging"

	"github.com/sirupsen/logrus"
)

// TickCallback is invoked after a consumer was recharged.
type TickCallback func(manager *charging.Manager, report charging.TickReport)

// Driver ticks every consumer of a directory, one after the other.
type Driver struct {
	directory *charging.Directory
	interval  time.Duration
	logger    *logrus.Logger

	mutex     sync.RWMutex
	callbacks []TickCallback
	ticks     int64
}

func NewDriver(directory *charging.Directory, interval time.Duration, logger *logrus.Logger) *Driver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Driver{
		directory: directory,
		interval:  interval,
		logger:    logger,
	}
}

func (d *Driver) AddTickCallback(callback TickCallback) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callbacks = append(d.callbacks, callback)
}

func (d *Driver) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Infof("Starting simulation driver (tick every %s)", d.interval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Stopping simulation driver")
			return
		case <-ticker.C:
			d.Step()
		}
	}
}

// Step runs a single tick for every consumer. While the simulation is paused
// nothing is drained, recharged or reported.
func (d *Driver) Step() {
	d.mutex.Lock()
	d.ticks++
	callbacks := make([]TickCallback, len(d.callbacks))
	copy(callbacks, d.callbacks)
	d.mutex.Unlock()

	for _, manager := range d.directory.Managers() {
		consumer := manager.Consumer()
		if consumer.State != nil && consumer.State.IsPaused() {
			continue
		}

		d.applyLoad(manager)
		manager.RechargeConsumer()

		report := manager.LastReport()
		for _, callback := range callbacks {
			callback(manager, report)
		}
	}
}

func (d *Driver) applyLoad(manager *charging.Manager) {
	consumer := manager.Consumer()
	if consumer.LoadPerTick <= 0 {
		return
	}
	if consumer.State != nil && !consumer.State.PowerRequired() {
		return
	}

	scale := 1.0
	if consumer.State != nil {
		scale, _, _ = consumer.State.Get()
	}

	drawn := consumer.Relay.ConsumeEnergy(consumer.LoadPerTick * scale)
	d.logger.Debugf("Consumer %s drew %.2f", consumer.ID, drawn)
}

func (d *Driver) Ticks() int64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.ticks
}
