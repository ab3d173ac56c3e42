package implcaps

import (
	"context"

	"github.com/davrell/hearth/attribute"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/mock"
)

type MockHearthInterface struct {
	mock.Mock
}

func (m *MockHearthInterface) Logger() logwrap.Logger {
	return m.Called().Get(0).(logwrap.Logger)
}

func (m *MockHearthInterface) ZCLRegister(f func(*zcl.CommandRegistry)) {
	m.Called(f)
}

func (m *MockHearthInterface) TransmissionLookup(device da.Device, id zigbee.ProfileID) (zigbee.IEEEAddress, zigbee.Endpoint, bool, uint8) {
	args := m.Called(device, id)
	return args.Get(0).(zigbee.IEEEAddress), args.Get(1).(zigbee.Endpoint), args.Bool(2), uint8(args.Int(3))
}

func (m *MockHearthInterface) AdapterAddress() zigbee.IEEEAddress {
	return m.Called().Get(0).(zigbee.IEEEAddress)
}

func (m *MockHearthInterface) ZCLCommunicator() communicator.Communicator {
	return m.Called().Get(0).(communicator.Communicator)
}

func (m *MockHearthInterface) NewAttributeMonitor() attribute.Monitor {
	return m.Called().Get(0).(attribute.Monitor)
}

func (m *MockHearthInterface) SendEvent(a any) {
	m.Called(a)
}

var _ HearthInterface = (*MockHearthInterface)(nil)

type MockHearthCapability struct {
	mock.Mock
}

func (m *MockHearthCapability) Capability() da.Capability {
	return m.Called().Get(0).(da.Capability)
}

func (m *MockHearthCapability) Name() string {
	return m.Called().String(0)
}

func (m *MockHearthCapability) Init(d da.Device, s persistence.Section) {
	m.Called(d, s)
}

func (m *MockHearthCapability) Load(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockHearthCapability) Enumerate(ctx context.Context, s map[string]any) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func (m *MockHearthCapability) Detach(ctx context.Context, t DetachType) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockHearthCapability) ImplName() string {
	return m.Called().String(0)
}

var _ HearthCapability = (*MockHearthCapability)(nil)
