package chain

import (
	"math"
	"time"
)

// TTLStrategy determines the TTL each layer of the chain gets for a value.
type TTLStrategy interface {
	// GetTTL returns the TTL for layerIndex in a chain of layerCount layers.
	GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

// GetTTL returns baseTTL.
func (s *UniformTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens the TTL of the upper (faster, per-process)
// layers so they go stale sooner than the shared ones.
type DecayingTTLStrategy struct {
	DecayFactor float64 // 0.5 means each layer keeps half as long as the one below
}

// GetTTL returns baseTTL * DecayFactor^(layerCount-1-layerIndex). The last
// layer keeps the full baseTTL. Factors outside (0,1) disable decay.
func (s *DecayingTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || layerIndex >= layerCount-1 {
		return baseTTL
	}

	exponent := float64(layerCount - 1 - layerIndex)
	return time.Duration(float64(baseTTL) * math.Pow(s.DecayFactor, exponent))
}

// CustomTTLStrategy uses explicit TTL values for each layer.
type CustomTTLStrategy struct {
	TTLs []time.Duration
}

// GetTTL returns the configured TTL for a layer, or baseTTL if not specified.
func (s *CustomTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	if layerIndex < len(s.TTLs) && s.TTLs[layerIndex] > 0 {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
