package hearth

import (
	"github.com/davrell/hearth/implcaps/factory"
	"github.com/shimmeringbee/logwrap"
)

// providerLoad restores the node and device tables, and their attached
// capabilities, from persistence at start up.
func (g *gateway) providerLoad() {
	for _, addr := range g.nodeListFromPersistence() {
		n, _ := g.createNode(addr)

		for _, devAddr := range g.deviceListFromPersistence(addr) {
			g.providerLoadDevice(n, devAddr)
		}
	}
}

func (g *gateway) providerLoadDevice(n *node, addr IEEEAddressWithSubIdentifier) {
	d := g.createSpecificDevice(n, addr.SubIdentifier)

	s := g.sectionForDevice(addr)

	if deviceId, ok := s.Int("deviceId"); ok {
		d.m.Lock()
		d.deviceId = uint16(deviceId)
		d.m.Unlock()
	}

	capSection := s.Section("capability")

	for _, capName := range capSection.SectionKeys() {
		cs := capSection.Section(capName)

		implName, ok := cs.String("implementation")
		if !ok {
			g.logger.Warn(g.ctx, "Persisted capability missing implementation name.", logwrap.Datum("Identifier", addr.String()), logwrap.Datum("Capability", capName))
			continue
		}

		c := factory.Create(implName, g.hi)
		if c == nil {
			g.logger.Warn(g.ctx, "Persisted capability has unknown implementation.", logwrap.Datum("Identifier", addr.String()), logwrap.Datum("CapabilityImplementation", implName))
			continue
		}

		c.Init(d, cs.Section("data"))

		if loaded, err := c.Load(g.ctx); loaded {
			if err != nil {
				g.logger.Warn(g.ctx, "Error thrown while loading capability, attached anyway.", logwrap.Datum("Identifier", addr.String()), logwrap.Datum("CapabilityImplementation", implName), logwrap.Err(err))
			}

			d.m.Lock()
			g.attachCapabilityToDevice(d, c)
			d.m.Unlock()
		} else {
			g.logger.Error(g.ctx, "Failed to load capability from persistence.", logwrap.Datum("Identifier", addr.String()), logwrap.Datum("CapabilityImplementation", implName), logwrap.Err(err))
		}
	}
}
