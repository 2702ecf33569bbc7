package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"safegym/internal/envid"
)

type Factory func(opts Options) (Env, error)

var envRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func Register(name string, factory Factory) error {
	normalized := envid.Normalize(name)
	if normalized == "" {
		return errors.New("env name is required")
	}
	if factory == nil {
		return errors.New("env factory is required")
	}

	envRegistry.mu.Lock()
	defer envRegistry.mu.Unlock()

	if _, exists := envRegistry.m[normalized]; exists {
		return fmt.Errorf("%w: %s", ErrEnvExists, normalized)
	}
	envRegistry.m[normalized] = factory
	return nil
}

// Make builds a registered env; name may be any alias envid understands.
func Make(name string, opts Options) (Env, error) {
	normalized := envid.Normalize(name)
	envRegistry.mu.RLock()
	factory, ok := envRegistry.m[normalized]
	envRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEnvNotFound, name)
	}
	return factory(opts)
}

func List() []string {
	envRegistry.mu.RLock()
	defer envRegistry.mu.RUnlock()

	names := make([]string, 0, len(envRegistry.m))
	for n := range envRegistry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	initializeDefaultEnvs()
}

func initializeDefaultEnvs() {
	err := Register(envid.PointHazard, func(opts Options) (Env, error) {
		return NewPointHazardEnv(envid.PointHazard, opts.withLevelDefaults(8))
	})
	if err != nil {
		panic(err)
	}
	err = Register(envid.PointHazardDense, func(opts Options) (Env, error) {
		return NewPointHazardEnv(envid.PointHazardDense, opts.withLevelDefaults(16))
	})
	if err != nil {
		panic(err)
	}
}

func resetRegistryForTests() {
	envRegistry.mu.Lock()
	envRegistry.m = make(map[string]Factory)
	envRegistry.mu.Unlock()

	initializeDefaultEnvs()
}
