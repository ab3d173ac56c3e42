package mocks

import (
	"github.com/shimmeringbee/da"
	"github.com/stretchr/testify/mock"
)

type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Gateway() da.Gateway {
	return m.Called().Get(0).(da.Gateway)
}

func (m *MockDevice) Identifier() da.Identifier {
	return m.Called().Get(0).(da.Identifier)
}

func (m *MockDevice) Capabilities() []da.Capability {
	return m.Called().Get(0).([]da.Capability)
}

func (m *MockDevice) Capability(c da.Capability) da.BasicCapability {
	ret := m.Called(c).Get(0)
	if ret == nil {
		return nil
	}
	return ret.(da.BasicCapability)
}

var _ da.Device = (*MockDevice)(nil)
