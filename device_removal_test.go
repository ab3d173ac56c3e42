package hearth

import (
	"context"
	"testing"

	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func Test_deviceRemoval_Remove(t *testing.T) {
	t.Run("a requested removal asks the provider for a node leave", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		defer stop(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		mockProvider.On("RequestNodeLeave", mock.Anything, n.address).Return(nil)

		assert.NoError(t, d.dr.Remove(context.Background(), capabilities.Request))
	})

	t.Run("a forced removal drops the node without asking it", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		defer stop(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		mockProvider.On("ForceNodeLeave", mock.Anything, n.address).Return(nil)

		assert.NoError(t, d.dr.Remove(context.Background(), capabilities.Force))
	})

	t.Run("an unknown removal type errors", func(t *testing.T) {
		gw, _, stop := newTestGateway(t)
		defer stop(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		assert.Error(t, d.dr.Remove(context.Background(), capabilities.RemovalType(0xff)))
	})
}
