package charging

import (
	"fmt"
	"sync"

	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

// ProviderFunc returns the settings view a new manager should read.
type ProviderFunc func(consumer *models.Consumer) ConfigProvider

// Directory owns one charge manager per consumer.
type Directory struct {
	registry  *Registry
	providers ProviderFunc
	logger    *logrus.Logger
	metrics   *Metrics

	mutex    sync.RWMutex
	managers map[string]*Manager
	order    []string
}

func NewDirectory(registry *Registry, providers ProviderFunc, logger *logrus.Logger) *Directory {
	return &Directory{
		registry:  registry,
		providers: providers,
		logger:    logger,
		managers:  make(map[string]*Manager),
	}
}

// SetMetrics applies to managers created afterwards.
func (d *Directory) SetMetrics(metrics *Metrics) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.metrics = metrics
}

// GetOrCreateManager returns the consumer's manager, creating it on first
// use. The manager is not initialized.
func (d *Directory) GetOrCreateManager(consumer *models.Consumer) (*Manager, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if m, ok := d.managers[consumer.ID]; ok {
		return m, nil
	}

	m, err := NewManager(consumer, d.registry, d.providers(consumer), d.logger)
	if err != nil {
		return nil, fmt.Errorf("creating manager for %s: %w", consumer.ID, err)
	}
	m.SetMetrics(d.metrics)

	d.managers[consumer.ID] = m
	d.order = append(d.order, consumer.ID)
	d.logger.Debugf("Created charge manager for %s", consumer.ID)

	return m, nil
}

func (d *Directory) Manager(consumerID string) (*Manager, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	m, ok := d.managers[consumerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConsumer, consumerID)
	}
	return m, nil
}

// Managers returns every manager in creation order.
func (d *Directory) Managers() []*Manager {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	managers := make([]*Manager, 0, len(d.order))
	for _, id := range d.order {
		managers = append(managers, d.managers[id])
	}
	return managers
}
