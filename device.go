package hearth

import (
	"fmt"
	"sync"

	"github.com/davrell/hearth/implcaps"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/zigbee"
)

type IEEEAddressWithSubIdentifier struct {
	IEEEAddress   zigbee.IEEEAddress
	SubIdentifier uint8
}

func (a IEEEAddressWithSubIdentifier) String() string {
	return fmt.Sprintf("%s-%02x", a.IEEEAddress, a.SubIdentifier)
}

type device struct {
	// Immutable data.
	address IEEEAddressWithSubIdentifier
	gw      *gateway
	n       *node
	m       *sync.RWMutex

	// Mutable data, obtain lock first.
	deviceId      uint16
	deviceVersion uint8
	endpoints     []zigbee.Endpoint
	online        bool

	capabilities map[da.Capability]implcaps.HearthCapability

	// Long lived capability attachments.
	eda *enumeratedDeviceAttachment
	dr  *deviceRemoval
}

func (d *device) Gateway() da.Gateway {
	return d.gw
}

func (d *device) Identifier() da.Identifier {
	return d.address
}

func (d *device) Capabilities() []da.Capability {
	d.m.RLock()
	defer d.m.RUnlock()

	caps := []da.Capability{capabilities.EnumerateDeviceFlag, capabilities.DeviceRemovalFlag}

	for c := range d.capabilities {
		caps = append(caps, c)
	}

	return caps
}

func (d *device) Capability(c da.Capability) da.BasicCapability {
	switch c {
	case capabilities.EnumerateDeviceFlag:
		return d.eda
	case capabilities.DeviceRemovalFlag:
		return d.dr
	default:
		d.m.RLock()
		defer d.m.RUnlock()

		return d.capabilities[c]
	}
}

var _ da.Device = (*device)(nil)
