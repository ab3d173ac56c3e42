package hearth

import (
	"testing"

	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
)

func Test_gateway_nodeListFromPersistence(t *testing.T) {
	t.Run("nodes with sections present in persistence are listed", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		addrOne := zigbee.GenerateLocalAdministeredIEEEAddress()
		addrTwo := zigbee.GenerateLocalAdministeredIEEEAddress()

		gw.sectionForNode(addrOne)
		gw.sectionForNode(addrTwo)

		list := gw.nodeListFromPersistence()
		assert.Contains(t, list, addrOne)
		assert.Contains(t, list, addrTwo)
	})

	t.Run("section keys that are not hexadecimal addresses are skipped", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		gw.section.Section("node", "not-an-address")

		assert.Empty(t, gw.nodeListFromPersistence())
	})
}

func Test_gateway_deviceListFromPersistence(t *testing.T) {
	t.Run("device sub identifiers under a node are listed against that node", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()

		gw.sectionForDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})
		gw.sectionForDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 3})

		list := gw.deviceListFromPersistence(addr)
		assert.Len(t, list, 2)
		assert.Contains(t, list, IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})
		assert.Contains(t, list, IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 3})
	})
}
