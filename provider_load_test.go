package hearth

import (
	"context"
	"testing"

	"github.com/davrell/hearth/implcaps/factory"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
)

func Test_gateway_providerLoad(t *testing.T) {
	t.Run("restores nodes, devices and attached capabilities from persistence", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		devAddr := IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0}

		s := gw.sectionForDevice(devAddr)
		s.Set("deviceId", 0x0402)

		cs := s.Section("capability", capabilities.StandardNames[capabilities.ProductInformationFlag])
		cs.Set("implementation", factory.GenericProductInformation)
		cs.Section("data").Set("Name", "Motion Sensor")
		cs.Section("data").Set("Manufacturer", "Example Corp")

		gw.providerLoad()

		n := gw.getNode(addr)
		assert.NotNil(t, n)

		d := gw.getDevice(devAddr)
		assert.NotNil(t, d)
		assert.Equal(t, uint16(0x0402), d.deviceId)
		assert.Contains(t, d.Capabilities(), capabilities.ProductInformationFlag)

		c := d.Capability(capabilities.ProductInformationFlag)
		assert.NotNil(t, c)

		pic, ok := c.(capabilities.ProductInformation)
		assert.True(t, ok)

		pi, err := pic.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "Motion Sensor", pi.Name)
		assert.Equal(t, "Example Corp", pi.Manufacturer)
	})

	t.Run("a persisted capability with an unknown implementation is skipped", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		devAddr := IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0}

		cs := gw.sectionForDevice(devAddr).Section("capability", "Bogus")
		cs.Set("implementation", "NotARealImplementation")

		gw.providerLoad()

		d := gw.getDevice(devAddr)
		assert.NotNil(t, d)
		assert.NotContains(t, d.Capabilities(), capabilities.ProductInformationFlag)
	})
}
