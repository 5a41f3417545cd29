package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMZeroDistance(t *testing.T) {
	assert.Zero(t, HaversineM(-78.49, -0.21, -78.49, -0.21))
}

func TestHaversineMKnownDistances(t *testing.T) {
	// One degree of latitude along a meridian is roughly 111.2 km.
	d := HaversineM(0, 0, 0, 1)
	assert.InDelta(t, 111195, d, 100)

	// Quito city center to Mitad del Mundo, roughly 22.5 km.
	d = HaversineM(-78.4678, -0.1807, -78.4558, 0.0022)
	assert.InDelta(t, 20400, d, 1000)
}

func TestHaversineMSymmetry(t *testing.T) {
	a := HaversineM(-78.49, -0.21, -78.47, -0.18)
	b := HaversineM(-78.47, -0.18, -78.49, -0.21)
	assert.InDelta(t, a, b, 1e-9)
}

func TestBoundingBoxAtEquator(t *testing.T) {
	dLat, dLng := BoundingBox(0, 111000)
	assert.InDelta(t, 1.0, dLat, 1e-9)
	assert.InDelta(t, 1.0, dLng, 1e-9)
}

func TestBoundingBoxWidensWithLatitude(t *testing.T) {
	_, dLngEquator := BoundingBox(0, 5000)
	_, dLngHigh := BoundingBox(60, 5000)
	assert.Greater(t, dLngHigh, dLngEquator)
}

func TestBoundingBoxFiniteAtPole(t *testing.T) {
	_, dLng := BoundingBox(90, 5000)
	assert.False(t, math.IsInf(dLng, 0))
	assert.False(t, math.IsNaN(dLng))
}
