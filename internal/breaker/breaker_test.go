package breaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/config"
)

func TestSettingsFromConfig(t *testing.T) {
	s := Settings("platform", config.Breaker{MaxRequests: 2, IntervalSec: 10, TimeoutSec: 5, ReadyToTripRatio: 0.5}, zap.NewNop())
	assert.Equal(t, "platform", s.Name)
	assert.Equal(t, uint32(2), s.MaxRequests)
	assert.Equal(t, 5.0, s.Timeout.Seconds())

	assert.False(t, s.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
	assert.False(t, s.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
	assert.True(t, s.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
}

func TestDefaultRatio(t *testing.T) {
	s := Settings("x", config.Breaker{}, zap.NewNop())
	assert.False(t, s.ReadyToTrip(gobreaker.Counts{Requests: 5, TotalFailures: 2}))
	assert.True(t, s.ReadyToTrip(gobreaker.Counts{Requests: 5, TotalFailures: 3}))
}

func TestNewTrips(t *testing.T) {
	cb := New("x", config.Breaker{MaxRequests: 1, IntervalSec: 60, TimeoutSec: 60}, zap.NewNop())
	fail := func() (interface{}, error) { return nil, errors.New("down") }
	for range 3 {
		_, _ = cb.Execute(fail)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}
