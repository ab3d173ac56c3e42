package hearth

import (
	"github.com/davrell/hearth/attribute"
	"github.com/davrell/hearth/implcaps"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
)

var _ implcaps.HearthInterface = (*hearthInterface)(nil)

// hearthInterface is the shim handed to capability implementations, exposing
// the narrow slice of gateway functionality they are permitted to use.
type hearthInterface struct {
	gw *gateway
	c  communicator.Communicator
}

func (h hearthInterface) Logger() logwrap.Logger {
	return h.gw.logger
}

func (h hearthInterface) ZCLRegister(f func(*zcl.CommandRegistry)) {
	f(h.gw.zclCommandRegistry)
}

func (h hearthInterface) TransmissionLookup(d da.Device, id zigbee.ProfileID) (zigbee.IEEEAddress, zigbee.Endpoint, bool, uint8) {
	return h.gw.transmissionLookup(d, id)
}

func (h hearthInterface) AdapterAddress() zigbee.IEEEAddress {
	return h.gw.provider.AdapterNode().IEEEAddress
}

func (h hearthInterface) ZCLCommunicator() communicator.Communicator {
	return h.c
}

func (h hearthInterface) NewAttributeMonitor() attribute.Monitor {
	return attribute.NewMonitor(h.gw.zclCommunicator, h.gw.provider, h.gw.transmissionLookup, h.gw.logger)
}

func (h hearthInterface) SendEvent(a any) {
	h.gw.sendEvent(a)
}
