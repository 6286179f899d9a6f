package printing

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Options are passed to backend constructors.
type Options struct {
	// Runner executes the backend's commands. Nil means ExecRunner.
	Runner Runner

	// Timeout bounds each command when Runner is nil.
	Timeout time.Duration

	// Host, Port and User address an IPP server. Command-line backends
	// ignore them.
	Host string
	Port int
	User string
}

func (o Options) runner() Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return ExecRunner{Timeout: o.Timeout}
}

// Constructor creates a Subsystem.
type Constructor func(opts Options) (Subsystem, error)

var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register makes a backend available under name. It panics if the name is
// taken or the constructor is nil.
//
// Backends register themselves from init:
//
//	func init() {
//	    printing.Register("cups", newCUPS)
//	}
func Register(name string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("printing: Register constructor is nil for backend %s", name))
	}
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("printing: Register called twice for backend %s", name))
	}

	registry[name] = constructor
}

// NewSubsystem creates the backend registered under name.
func NewSubsystem(name string, opts Options) (Subsystem, error) {
	registryMutex.RLock()
	constructor := registry[name]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return constructor(opts)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
