package hearth

import (
	"context"
	"testing"

	"github.com/davrell/hearth/implcaps"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func Test_enumerator_allocateEndpointsToDevices(t *testing.T) {
	t.Run("endpoints sharing a device id collect on one device, differing ids spawn further devices", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		gw.createNextDevice(n)

		n.m.Lock()
		n.inventory.endpoints = map[zigbee.Endpoint]endpointDetails{
			0x01: {description: zigbee.EndpointDescription{Endpoint: 0x01, DeviceID: 0x0402, DeviceVersion: 1}},
			0x02: {description: zigbee.EndpointDescription{Endpoint: 0x02, DeviceID: 0x0402, DeviceVersion: 1}},
			0x03: {description: zigbee.EndpointDescription{Endpoint: 0x03, DeviceID: 0x0107, DeviceVersion: 1}},
		}
		n.m.Unlock()

		gw.ed.allocateEndpointsToDevices(n)

		devices := gw.getDevicesOnNode(n)
		assert.Len(t, devices, 2)

		for _, d := range devices {
			d.m.RLock()
			switch d.deviceId {
			case 0x0402:
				assert.ElementsMatch(t, []zigbee.Endpoint{0x01, 0x02}, d.endpoints)
			case 0x0107:
				assert.ElementsMatch(t, []zigbee.Endpoint{0x03}, d.endpoints)
			default:
				t.Fatalf("unexpected device id: %04x", d.deviceId)
			}
			d.m.RUnlock()
		}
	})

	t.Run("devices whose endpoints have disappeared are removed, but never the last device", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		gw.createNextDevice(n)

		n.m.Lock()
		n.inventory.endpoints = map[zigbee.Endpoint]endpointDetails{
			0x01: {description: zigbee.EndpointDescription{Endpoint: 0x01, DeviceID: 0x0402, DeviceVersion: 1}},
			0x03: {description: zigbee.EndpointDescription{Endpoint: 0x03, DeviceID: 0x0107, DeviceVersion: 1}},
		}
		n.m.Unlock()

		gw.ed.allocateEndpointsToDevices(n)
		assert.Len(t, gw.getDevicesOnNode(n), 2)

		// Second enumeration after the 0x0107 endpoint has gone.
		n.m.Lock()
		n.inventory.endpoints = map[zigbee.Endpoint]endpointDetails{
			0x01: {description: zigbee.EndpointDescription{Endpoint: 0x01, DeviceID: 0x0402, DeviceVersion: 1}},
		}
		n.m.Unlock()

		gw.ed.allocateEndpointsToDevices(n)

		devices := gw.getDevicesOnNode(n)
		assert.Len(t, devices, 1)
		assert.Equal(t, uint16(0x0402), devices[0].deviceId)
	})
}

func Test_enumerator_runRules(t *testing.T) {
	t.Run("cluster membership on the device endpoints selects capability implementations", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		n.m.Lock()
		n.inventory.description = &zigbee.NodeDescription{LogicalType: zigbee.EndDevice, ManufacturerCode: 0x1234}
		n.inventory.endpoints = map[zigbee.Endpoint]endpointDetails{
			0x01: {
				description: zigbee.EndpointDescription{
					Endpoint:      0x01,
					ProfileID:     zigbee.ProfileHomeAutomation,
					DeviceID:      0x0402,
					InClusterList: []zigbee.ClusterID{zcl.BasicId, zcl.IASZoneId},
				},
				productInformation: productData{manufacturer: "Example Corp", product: "Contact Sensor"},
			},
		}
		n.m.Unlock()

		d.m.Lock()
		d.endpoints = []zigbee.Endpoint{0x01}
		d.m.Unlock()

		desired, err := gw.ed.runRules(n, d)
		assert.NoError(t, err)

		assert.Contains(t, desired, "GenericProductInformation")
		assert.Contains(t, desired, "ZCLIASZoneSensor")
		assert.NotContains(t, desired, "ZCLOccupancySensor")

		assert.Equal(t, "Contact Sensor", desired["GenericProductInformation"]["Name"])
		assert.Equal(t, "Example Corp", desired["GenericProductInformation"]["Manufacturer"])
		assert.Equal(t, 1, desired["ZCLIASZoneSensor"]["ZigbeeEndpoint"])
	})

	t.Run("the first endpoint to produce a capability wins over later endpoints", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		n.m.Lock()
		n.inventory.endpoints = map[zigbee.Endpoint]endpointDetails{
			0x01: {description: zigbee.EndpointDescription{Endpoint: 0x01, InClusterList: []zigbee.ClusterID{zigbee.ClusterID(0x0406)}}},
			0x02: {description: zigbee.EndpointDescription{Endpoint: 0x02, InClusterList: []zigbee.ClusterID{zigbee.ClusterID(0x0406)}}},
		}
		n.m.Unlock()

		d.m.Lock()
		d.endpoints = []zigbee.Endpoint{0x02, 0x01}
		d.m.Unlock()

		desired, err := gw.ed.runRules(n, d)
		assert.NoError(t, err)
		assert.Equal(t, 1, desired["ZCLOccupancySensor"]["ZigbeeEndpoint"])
	})
}

func Test_enumerator_updateCapabilitiesOnDevice(t *testing.T) {
	t.Run("a newly desired capability is created, enumerated and attached", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		gw.ed.updateCapabilitiesOnDevice(context.Background(), d, map[string]map[string]any{
			"GenericProductInformation": {"Name": "Contact Sensor", "Manufacturer": "Example Corp"},
		})

		assert.Contains(t, d.Capabilities(), capabilities.ProductInformationFlag)

		pic, ok := d.Capability(capabilities.ProductInformationFlag).(capabilities.ProductInformation)
		assert.True(t, ok)

		pi, err := pic.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "Contact Sensor", pi.Name)
	})

	t.Run("a capability that fails to attach leaves nothing behind", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		// Empty settings mean product information has nothing to attach with.
		gw.ed.updateCapabilitiesOnDevice(context.Background(), d, map[string]map[string]any{
			"GenericProductInformation": {},
		})

		assert.NotContains(t, d.Capabilities(), capabilities.ProductInformationFlag)
	})

	t.Run("capabilities no longer produced by enumeration are detached", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		mhc := &implcaps.MockHearthCapability{}
		defer mhc.AssertExpectations(t)

		mhc.On("Capability").Return(capabilities.OnOffFlag)
		mhc.On("ImplName").Return("ZCLOnOffSensor")
		mhc.On("Detach", mock.Anything, implcaps.NoLongerEnumerated).Return(nil)

		d.m.Lock()
		gw.attachCapabilityToDevice(d, mhc)
		d.m.Unlock()

		gw.ed.updateCapabilitiesOnDevice(context.Background(), d, map[string]map[string]any{})

		assert.NotContains(t, d.Capabilities(), capabilities.OnOffFlag)
	})
}

func Test_enumeratedDeviceAttachment(t *testing.T) {
	t.Run("status reflects whether the node is enumerating", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		status, err := d.eda.Status(context.Background())
		assert.NoError(t, err)
		assert.False(t, status.Enumerating)

		n.m.Lock()
		n.enumerating = true
		n.m.Unlock()

		status, err = d.eda.Status(context.Background())
		assert.NoError(t, err)
		assert.True(t, status.Enumerating)
	})
}
