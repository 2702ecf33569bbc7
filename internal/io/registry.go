package io

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"safegym/internal/envid"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrSensorExists     = errors.New("sensor already registered")
	ErrSensorNotFound   = errors.New("sensor not found")
	ErrActuatorExists   = errors.New("actuator already registered")
	ErrActuatorNotFound = errors.New("actuator not found")
	ErrVersionMismatch  = errors.New("registry version mismatch")
	ErrIncompatible     = errors.New("component incompatible with env")
)

// CompatibilityFn receives the normalized env name. A nil CompatibilityFn
// accepts every env.
type CompatibilityFn func(env string) error

type SensorFactory func(opts SensorOptions) Sensor

type ActuatorFactory func() Actuator

// SensorSpec registers a sensor. Zero versions mean the supported ones.
type SensorSpec struct {
	Name          string
	Factory       SensorFactory
	SchemaVersion int
	CodecVersion  int
	Compatible    CompatibilityFn
}

// ActuatorSpec registers an actuator. Zero versions mean the supported ones.
type ActuatorSpec struct {
	Name          string
	Factory       ActuatorFactory
	SchemaVersion int
	CodecVersion  int
	Compatible    CompatibilityFn
}

// Rig is the set of components an env can be assembled from.
type Rig struct {
	Env       string
	Sensors   []string
	Actuators []string
}

type component[F any] struct {
	factory    F
	compatible CompatibilityFn
}

// catalog is a name-keyed component table shared by sensors and actuators.
type catalog[F any] struct {
	kind      string
	exists    error
	notFound  error
	canonical func(string) string

	mu sync.RWMutex
	m  map[string]component[F]
}

func newCatalog[F any](kind string, exists, notFound error, canonical func(string) string) *catalog[F] {
	return &catalog[F]{
		kind:      kind,
		exists:    exists,
		notFound:  notFound,
		canonical: canonical,
		m:         make(map[string]component[F]),
	}
}

func (c *catalog[F]) register(name string, factory F, isNil bool, schema, codec int, compatible CompatibilityFn) error {
	if name == "" {
		return fmt.Errorf("%s name is required", c.kind)
	}
	if isNil {
		return fmt.Errorf("%s factory is required", c.kind)
	}
	if schema == 0 {
		schema = SupportedSchemaVersion
	}
	if codec == 0 {
		codec = SupportedCodecVersion
	}
	if schema != SupportedSchemaVersion || codec != SupportedCodecVersion {
		return fmt.Errorf("%w: %s=%s schema=%d codec=%d", ErrVersionMismatch, c.kind, name, schema, codec)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[name]; ok {
		return fmt.Errorf("%w: %s", c.exists, name)
	}
	c.m[name] = component[F]{factory: factory, compatible: compatible}
	return nil
}

func (c *catalog[F]) lookup(name, env string) (F, error) {
	var zero F
	key := strings.TrimSpace(name)
	if c.canonical != nil {
		key = c.canonical(key)
	}

	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || key == "" {
		return zero, fmt.Errorf("%w: %s", c.notFound, name)
	}
	if err := entry.check(envid.Normalize(env)); err != nil {
		return zero, fmt.Errorf("%w: %s=%s: %v", ErrIncompatible, c.kind, key, err)
	}
	return entry.factory, nil
}

func (c *catalog[F]) compatibleWith(env string) []string {
	normalized := envid.Normalize(env)

	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.m))
	for name, entry := range c.m {
		if entry.check(normalized) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c component[F]) check(env string) error {
	if c.compatible == nil {
		return nil
	}
	return c.compatible(env)
}

var (
	sensors   = newCatalog[SensorFactory]("sensor", ErrSensorExists, ErrSensorNotFound, nil)
	actuators = newCatalog[ActuatorFactory]("actuator", ErrActuatorExists, ErrActuatorNotFound, CanonicalActuatorName)
)

func RegisterSensor(spec SensorSpec) error {
	return sensors.register(spec.Name, spec.Factory, spec.Factory == nil, spec.SchemaVersion, spec.CodecVersion, spec.Compatible)
}

func RegisterActuator(spec ActuatorSpec) error {
	return actuators.register(spec.Name, spec.Factory, spec.Factory == nil, spec.SchemaVersion, spec.CodecVersion, spec.Compatible)
}

func ResolveSensor(name, env string, opts SensorOptions) (Sensor, error) {
	factory, err := sensors.lookup(name, env)
	if err != nil {
		return nil, err
	}
	return factory(opts.withDefaults()), nil
}

// ResolveActuator accepts canonical names and their aliases.
func ResolveActuator(name, env string) (Actuator, error) {
	factory, err := actuators.lookup(name, env)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// SensorsFor builds every sensor compatible with env, ordered by name.
func SensorsFor(env string, opts SensorOptions) ([]Sensor, error) {
	names := sensors.compatibleWith(env)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no sensors for env %s", ErrSensorNotFound, env)
	}
	out := make([]Sensor, 0, len(names))
	for _, name := range names {
		sensor, err := ResolveSensor(name, env, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, sensor)
	}
	return out, nil
}

// RigFor lists the sensors and actuators compatible with env.
func RigFor(env string) Rig {
	return Rig{
		Env:       envid.Normalize(env),
		Sensors:   sensors.compatibleWith(env),
		Actuators: actuators.compatibleWith(env),
	}
}

func resetRegistriesForTests() {
	for _, c := range []interface{ reset() }{sensors, actuators} {
		c.reset()
	}
	initializeDefaultComponents()
}

func (c *catalog[F]) reset() {
	c.mu.Lock()
	c.m = make(map[string]component[F])
	c.mu.Unlock()
}
