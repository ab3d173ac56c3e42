package hearth

import (
	"context"
	"testing"
	"time"

	"github.com/shimmeringbee/da/capabilities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func Test_deviceDiscovery_Enable(t *testing.T) {
	t.Run("enabling discovery permits joins on the provider and emits an allowed event", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		mockProvider.On("PermitJoin", mock.Anything, true).Return(nil)
		mockProvider.On("DenyJoin", mock.Anything).Return(nil).Maybe()
		defer stop(t)

		assert.NoError(t, gw.discovery.Enable(context.Background(), 500*time.Millisecond))

		status, err := gw.discovery.Status(context.Background())
		assert.NoError(t, err)
		assert.True(t, status.Discovering)
		assert.Greater(t, status.RemainingDuration, time.Duration(0))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		event, err := gw.ReadEvent(ctx)
		assert.NoError(t, err)
		assert.Equal(t, capabilities.DeviceDiscoveryAllowed{Gateway: gw, Duration: 500 * time.Millisecond}, event)
	})

	t.Run("a provider error propagates and leaves discovery disabled", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		mockProvider.On("PermitJoin", mock.Anything, true).Return(context.DeadlineExceeded)
		defer stop(t)

		assert.Error(t, gw.discovery.Enable(context.Background(), time.Minute))

		status, _ := gw.discovery.Status(context.Background())
		assert.False(t, status.Discovering)
	})
}

func Test_deviceDiscovery_Disable(t *testing.T) {
	t.Run("disabling discovery denies joins on the provider and emits a denied event", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		mockProvider.On("PermitJoin", mock.Anything, true).Return(nil)
		mockProvider.On("DenyJoin", mock.Anything).Return(nil)
		defer stop(t)

		assert.NoError(t, gw.discovery.Enable(context.Background(), time.Minute))
		drainEvents(gw)

		assert.NoError(t, gw.discovery.Disable(context.Background()))

		status, err := gw.discovery.Status(context.Background())
		assert.NoError(t, err)
		assert.False(t, status.Discovering)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		event, err := gw.ReadEvent(ctx)
		assert.NoError(t, err)
		assert.Equal(t, capabilities.DeviceDiscoveryDenied{Gateway: gw}, event)
	})
}
