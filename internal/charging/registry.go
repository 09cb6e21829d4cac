package charging

import (
	"fmt"
	"reflect"
	"sync"

	"cyclops-power/internal/models"

	"github.com/sirupsen/logrus"
)

type registration struct {
	factory ChargerFactory
	caller  string
}

// Registry collects charger factories contributed by independent feature
// modules. It is append-only: factories are never removed.
type Registry struct {
	logger *logrus.Logger

	mutex         sync.RWMutex
	registrations []registration
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		logger: logger,
	}
}

// Register adds factory unless that same factory value is already known.
// Duplicates are dropped with a warning naming the caller.
func (r *Registry) Register(factory ChargerFactory, caller string) {
	if factory == nil {
		r.logger.Warnf("Nil charger factory ignored from %s", caller)
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, reg := range r.registrations {
		if sameFactory(reg.factory, factory) {
			r.logger.Warnf("Duplicate charger factory blocked from %s", caller)
			return
		}
	}

	r.logger.Infof("Received charger factory from %s", caller)
	r.registrations = append(r.registrations, registration{factory: factory, caller: caller})
}

// sameFactory compares factory identities. Factories whose dynamic type is
// not comparable are always treated as distinct.
func sameFactory(a, b ChargerFactory) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.registrations)
}

// CreateAll invokes every factory for consumer in registration order. The
// first factory error aborts and is returned.
func (r *Registry) CreateAll(consumer *models.Consumer) ([]Charger, error) {
	r.mutex.RLock()
	regs := make([]registration, len(r.registrations))
	copy(regs, r.registrations)
	r.mutex.RUnlock()

	chargers := make([]Charger, 0, len(regs))
	for _, reg := range regs {
		charger, err := reg.factory.NewCharger(consumer)
		if err != nil {
			return nil, fmt.Errorf("charger factory from %s failed: %w", reg.caller, err)
		}
		if charger == nil {
			return nil, fmt.Errorf("charger factory from %s returned no charger", reg.caller)
		}
		chargers = append(chargers, charger)
	}
	return chargers, nil
}
