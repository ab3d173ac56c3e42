package onoff_sensor

import (
	"context"
	"testing"

	"github.com/davrell/hearth/attribute"
	"github.com/davrell/hearth/implcaps"
	"github.com/davrell/hearth/mocks"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/local/onoff"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestImplementation() (*Implementation, *implcaps.MockHearthInterface, *attribute.MockMonitor, *mocks.MockDevice) {
	mhi := &implcaps.MockHearthInterface{}
	mam := &attribute.MockMonitor{}

	d := &mocks.MockDevice{}
	d.On("Identifier").Return(zigbee.GenerateLocalAdministeredIEEEAddress()).Maybe()

	mhi.On("ZCLRegister", mock.Anything)
	mhi.On("NewAttributeMonitor").Return(mam)
	mam.On("Init", mock.Anything, d, mock.Anything)

	i := NewOnOffSensor(mhi)
	i.Init(d, memory.New())

	return i, mhi, mam, d
}

func TestImplementation_BaseFunctions(t *testing.T) {
	t.Run("basic static functions respond correctly", func(t *testing.T) {
		i, _, _, _ := newTestImplementation()

		assert.Equal(t, capabilities.OnOffFlag, i.Capability())
		assert.Equal(t, capabilities.StandardNames[capabilities.OnOffFlag], i.Name())
		assert.Equal(t, "ZCLOnOffSensor", i.ImplName())
	})
}

func TestImplementation_Enumerate(t *testing.T) {
	t.Run("attaches an attribute monitor to the on off attribute", func(t *testing.T) {
		i, _, mam, _ := newTestImplementation()
		defer mam.AssertExpectations(t)

		mam.On("Attach", mock.Anything, zigbee.Endpoint(2), zcl.OnOffId, onoff.OnOff, zcl.TypeBoolean, mock.Anything, mock.Anything).Return(nil)

		attached, err := i.Enumerate(context.Background(), map[string]any{implcaps.DataKeyZigbeeEndpoint: 2})
		assert.True(t, attached)
		assert.NoError(t, err)
		assert.Equal(t, zigbee.Endpoint(2), i.remoteEndpoint)
	})
}

func TestImplementation_Update(t *testing.T) {
	t.Run("boolean reports update state and publish events", func(t *testing.T) {
		i, mhi, _, d := newTestImplementation()

		var sent []any
		mhi.On("SendEvent", mock.Anything).Run(func(args mock.Arguments) {
			sent = append(sent, args.Get(0))
		})

		i.update(onoff.OnOff, zcl.AttributeDataTypeValue{DataType: zcl.TypeBoolean, Value: true})

		state, err := i.Status(context.Background())
		assert.NoError(t, err)
		assert.True(t, state)

		assert.Len(t, sent, 1)
		assert.Equal(t, capabilities.OnOffState{Device: d, State: true}, sent[0])
	})

	t.Run("mistyped reports are ignored", func(t *testing.T) {
		i, mhi, _, _ := newTestImplementation()
		defer mhi.AssertExpectations(t)

		i.update(onoff.OnOff, zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt8, Value: uint64(1)})

		state, _ := i.Status(context.Background())
		assert.False(t, state)
	})
}

func TestImplementation_Commands(t *testing.T) {
	t.Run("On sends the on command to the device endpoint", func(t *testing.T) {
		i, mhi, _, d := newTestImplementation()

		mzc := &mocks.MockZCLCommunicator{}
		defer mzc.AssertExpectations(t)

		deviceAddress := zigbee.GenerateLocalAdministeredIEEEAddress()

		mhi.On("TransmissionLookup", d, zigbee.ProfileHomeAutomation).Return(deviceAddress, zigbee.Endpoint(1), false, 0)
		mhi.On("ZCLCommunicator").Return(mzc)

		i.remoteEndpoint = 2

		mzc.On("Request", mock.Anything, deviceAddress, false, mock.MatchedBy(func(m zcl.Message) bool {
			_, ok := m.Command.(*onoff.On)
			return ok && m.ClusterID == zcl.OnOffId && m.DestinationEndpoint == zigbee.Endpoint(2)
		})).Return(nil)

		assert.NoError(t, i.On(context.Background()))
	})
}

func TestImplementation_Load(t *testing.T) {
	t.Run("restores state from persistence", func(t *testing.T) {
		s := memory.New()
		s.Set(StateKey, true)
		s.Set(implcaps.DataKeyZigbeeEndpoint, 2)

		mhi := &implcaps.MockHearthInterface{}
		mam := &attribute.MockMonitor{}

		d := &mocks.MockDevice{}
		d.On("Identifier").Return(zigbee.GenerateLocalAdministeredIEEEAddress()).Maybe()

		mhi.On("ZCLRegister", mock.Anything)
		mhi.On("NewAttributeMonitor").Return(mam)
		mam.On("Init", mock.Anything, d, mock.Anything)
		mam.On("Load", mock.Anything).Return(nil)

		i := NewOnOffSensor(mhi)
		i.Init(d, s)

		attached, err := i.Load(context.Background())
		assert.True(t, attached)
		assert.NoError(t, err)

		state, _ := i.Status(context.Background())
		assert.True(t, state)
		assert.Equal(t, zigbee.Endpoint(2), i.remoteEndpoint)
	})
}
