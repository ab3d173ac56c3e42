package hearth

import (
	"context"
	"testing"
	"time"

	"github.com/davrell/hearth/rules"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testGatewayIEEEAddress = zigbee.IEEEAddress(0x0102030405060708)
var testGatewayNetworkAddress = zigbee.NetworkAddress(0xeeff)

func newTestRuleEngine(t *testing.T) *rules.Engine {
	e := rules.New()

	if err := e.LoadFS(rules.Embedded); err != nil {
		t.Fatalf("failed to load embedded rules: %s", err)
	}

	if err := e.CompileRules(); err != nil {
		t.Fatalf("failed to compile embedded rules: %s", err)
	}

	return e
}

func newTestGateway(t *testing.T) (*gateway, *zigbee.MockProvider, func(*testing.T)) {
	mockProvider := new(zigbee.MockProvider)

	mockProvider.On("AdapterNode").Return(zigbee.Node{
		IEEEAddress:    testGatewayIEEEAddress,
		NetworkAddress: testGatewayNetworkAddress,
	}).Maybe()

	gw := New(context.Background(), memory.New(), mockProvider, newTestRuleEngine(t)).(*gateway)

	return gw, mockProvider, func(t *testing.T) {
		_ = gw.Stop()
		mockProvider.AssertExpectations(t)
	}
}

func TestGateway_Contract(t *testing.T) {
	t.Run("can be assigned to a da.Gateway", func(t *testing.T) {
		assert.Implements(t, (*da.Gateway)(nil), new(gateway))
	})
}

func TestGateway_Start(t *testing.T) {
	t.Run("a started gateway has a self device and has registered its endpoint with the provider", func(t *testing.T) {
		gw, mockProvider, stop := newTestGateway(t)
		mockProvider.On("ReadEvent", mock.Anything).Return(nil, context.Canceled).Maybe()
		mockProvider.On("RegisterAdapterEndpoint", mock.Anything, zigbee.Endpoint(1), zigbee.ProfileHomeAutomation, uint16(1), uint8(1), []zigbee.ClusterID{}, []zigbee.ClusterID{}).Return(nil)

		assert.NoError(t, gw.Start())
		defer stop(t)

		expectedDevice := da.BaseDevice{
			DeviceGateway:      gw,
			DeviceIdentifier:   testGatewayIEEEAddress,
			DeviceCapabilities: []da.Capability{capabilities.DeviceDiscoveryFlag},
		}

		assert.Equal(t, expectedDevice, gw.Self())
		assert.Equal(t, []da.Device{da.Device(expectedDevice)}, gw.Devices())
	})
}

func TestGateway_Capability(t *testing.T) {
	t.Run("device discovery is available from the gateway", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		assert.Contains(t, gw.Capabilities(), capabilities.DeviceDiscoveryFlag)
		assert.NotNil(t, gw.Capability(capabilities.DeviceDiscoveryFlag))
		assert.Nil(t, gw.Capability(capabilities.OnOffFlag))
	})
}

func TestGateway_ReadEvent(t *testing.T) {
	t.Run("context which expires should result in error", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
		defer cancel()

		_, err := gw.ReadEvent(ctx)
		assert.Error(t, err)
	})

	t.Run("sent events are received through ReadEvent", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()

		expectedEvent := true

		go func() {
			gw.sendEvent(expectedEvent)
		}()

		actualEvent, err := gw.ReadEvent(ctx)
		assert.NoError(t, err)
		assert.Equal(t, expectedEvent, actualEvent)
	})
}

func TestGateway_TransmissionLookup(t *testing.T) {
	t.Run("returns node addressing and a fresh transaction sequence for a device", func(t *testing.T) {
		gw, _, _ := newTestGateway(t)

		n, _ := gw.createNode(zigbee.GenerateLocalAdministeredIEEEAddress())
		d := gw.createNextDevice(n)

		addr, endpoint, ack, _ := gw.transmissionLookup(d, zigbee.ProfileHomeAutomation)

		assert.Equal(t, n.address, addr)
		assert.Equal(t, defaultGatewayHomeAutomationEndpoint, endpoint)
		assert.False(t, ack)
	})
}
