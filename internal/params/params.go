// Package params holds the operating parameters set by the chat front-end and
// the readiness gate that keeps ingestion waiting until they exist.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Recognized parameter keys
const (
	KeyLat      = "lat"
	KeyLon      = "lon"
	KeyPriceMin = "price_min"
	KeyPriceMax = "price_max"
	KeyFloorMin = "floor_min"
	KeyFloorMax = "floor_max"
)

// RequiredKeys are the parameters ingestion cannot start without
var RequiredKeys = []string{KeyLat, KeyLon, KeyPriceMin, KeyPriceMax, KeyFloorMin, KeyFloorMax}

var known = map[string]bool{
	KeyLat: true, KeyLon: true,
	KeyPriceMin: true, KeyPriceMax: true,
	KeyFloorMin: true, KeyFloorMax: true,
}

// Params is a concurrency-safe key/value store of numeric operating
// parameters with a readiness signal raised on every update
type Params struct {
	mu     sync.RWMutex
	values map[string]float64
	ready  chan struct{}
}

// New creates an empty parameter set
func New() *Params {
	return &Params{
		values: make(map[string]float64),
		ready:  make(chan struct{}, 1),
	}
}

// Set stores value under key and raises the readiness signal
func (p *Params) Set(key string, value float64) error {
	if !known[key] {
		return fmt.Errorf("unknown parameter %q", key)
	}
	p.mu.Lock()
	p.values[key] = value
	p.mu.Unlock()
	p.Signal()
	return nil
}

// SetString parses value as a number and stores it under key
func (p *Params) SetString(key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", key, err)
	}
	return p.Set(key, f)
}

// Merge sets every known key of values over the current parameters and
// raises the signal. Keys absent from values keep their current value.
func (p *Params) Merge(values map[string]float64) {
	p.mu.Lock()
	for k, v := range values {
		if known[k] {
			p.values[k] = v
		}
	}
	p.mu.Unlock()
	p.Signal()
}

// Get returns the value for key and whether it is set
func (p *Params) Get(key string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key
func (p *Params) Delete(key string) {
	p.mu.Lock()
	delete(p.values, key)
	p.mu.Unlock()
}

// Clear removes every parameter
func (p *Params) Clear() {
	p.mu.Lock()
	p.values = make(map[string]float64)
	p.mu.Unlock()
}

// Snapshot returns a copy of the current parameters
func (p *Params) Snapshot() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Missing returns the keys, in sorted order, that are not set
func (p *Params) Missing(keys ...string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var missing []string
	for _, k := range keys {
		if _, ok := p.values[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// HasAll reports whether every key is set
func (p *Params) HasAll(keys ...string) bool {
	return len(p.Missing(keys...)) == 0
}

// Signal raises the readiness signal. Repeated signals before a consumer
// reads collapse into one.
func (p *Params) Signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Ready returns the readiness signal channel
func (p *Params) Ready() <-chan struct{} {
	return p.ready
}

// ReferencePoint returns the configured reference coordinates
func (p *Params) ReferencePoint() (lat, lon float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lat, okLat := p.values[KeyLat]
	lon, okLon := p.values[KeyLon]
	return lat, lon, okLat && okLon
}
