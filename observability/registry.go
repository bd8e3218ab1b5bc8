package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop" and "slog" (default logger).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// Select resolves names into a single observer. One name yields that
// observer; several are combined with a MultiObserver. No names yields noop.
func Select(names ...string) (Observer, error) {
	switch len(names) {
	case 0:
		return NoOpObserver{}, nil
	case 1:
		return GetObserver(names[0])
	}

	selected := make([]Observer, 0, len(names))
	for _, name := range names {
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, obs)
	}
	return NewMultiObserver(selected...), nil
}
