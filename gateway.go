package hearth

import (
	"context"
	"log"
	"sync"

	"github.com/davrell/hearth/implcaps"
	"github.com/davrell/hearth/rules"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/global"
	"github.com/shimmeringbee/zcl/commands/local/ias_zone"
	"github.com/shimmeringbee/zcl/commands/local/onoff"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
)

const defaultGatewayHomeAutomationEndpoint = zigbee.Endpoint(0x01)

// Gateway is the da.Gateway produced by New, with lifecycle and logger
// hooks for the embedding application.
type Gateway interface {
	da.Gateway

	Start() error
	Stop() error

	WithGoLogger(parentLogger *log.Logger)
	WithLogWrapLogger(lw logwrap.Logger)
}

// New constructs a zigbee gateway on top of a provider, persisting all node
// and capability state into the given section. The gateway is inert until
// Start is called.
func New(ctx context.Context, s persistence.Section, p zigbee.Provider, e *rules.Engine) Gateway {
	ctx, cancel := context.WithCancel(ctx)

	zclCommandRegistry := zcl.NewCommandRegistry()
	global.Register(zclCommandRegistry)
	ias_zone.Register(zclCommandRegistry)
	onoff.Register(zclCommandRegistry)

	g := &gateway{
		provider: p,
		logger:   logwrap.New(discard.Discard()),

		ctx:       ctx,
		ctxCancel: cancel,

		section:    s,
		ruleEngine: e,

		node:   map[zigbee.IEEEAddress]*node{},
		events: make(chan any, 100),

		zclCommandRegistry: zclCommandRegistry,
	}

	g.zclCommunicator = communicator.NewCommunicator(p, zclCommandRegistry)

	g.hi = hearthInterface{gw: g, c: g.zclCommunicator}
	g.ed = &enumerator{gw: g}
	g.presence = &presenceMonitor{gw: g}
	g.discovery = &deviceDiscovery{gateway: g}

	return g
}

type gateway struct {
	provider zigbee.Provider
	logger   logwrap.Logger

	ctx       context.Context
	ctxCancel context.CancelFunc

	section    persistence.Section
	ruleEngine *rules.Engine

	selfDevice da.BaseDevice
	events     chan any

	nodeLock sync.RWMutex
	node     map[zigbee.IEEEAddress]*node

	zclCommandRegistry *zcl.CommandRegistry
	zclCommunicator    communicator.Communicator

	hi        implcaps.HearthInterface
	ed        *enumerator
	presence  *presenceMonitor
	discovery *deviceDiscovery
}

func (g *gateway) Start() error {
	g.selfDevice = da.BaseDevice{
		DeviceGateway:      g,
		DeviceIdentifier:   g.provider.AdapterNode().IEEEAddress,
		DeviceCapabilities: []da.Capability{capabilities.DeviceDiscoveryFlag},
	}

	if err := g.provider.RegisterAdapterEndpoint(g.ctx, defaultGatewayHomeAutomationEndpoint, zigbee.ProfileHomeAutomation, 1, 1, []zigbee.ClusterID{}, []zigbee.ClusterID{}); err != nil {
		g.logger.Error(g.ctx, "Failed to register adapter endpoint with provider.", logwrap.Err(err))
		return err
	}

	g.providerLoad()

	g.ed.start()
	g.presence.start()

	go g.providerLoop()

	return nil
}

func (g *gateway) Stop() error {
	g.ctxCancel()
	g.ed.stop()
	g.presence.stop()
	return nil
}

func (g *gateway) Self() da.Device {
	return g.selfDevice
}

func (g *gateway) Devices() []da.Device {
	devices := []da.Device{g.selfDevice}

	for _, d := range g.getDevices() {
		devices = append(devices, d)
	}

	return devices
}

func (g *gateway) Capabilities() []da.Capability {
	return []da.Capability{capabilities.DeviceDiscoveryFlag}
}

func (g *gateway) Capability(c da.Capability) any {
	switch c {
	case capabilities.DeviceDiscoveryFlag:
		return g.discovery
	default:
		return nil
	}
}

// transmissionLookup resolves the addressing details needed to talk to a
// device: the node address, our local endpoint, whether APS acks are in use
// and the next transaction sequence.
func (g *gateway) transmissionLookup(d da.Device, _ zigbee.ProfileID) (zigbee.IEEEAddress, zigbee.Endpoint, bool, uint8) {
	dev, ok := d.(*device)
	if !ok {
		return 0, defaultGatewayHomeAutomationEndpoint, false, 0
	}

	dev.n.m.RLock()
	defer dev.n.m.RUnlock()

	return dev.n.address, defaultGatewayHomeAutomationEndpoint, dev.n.useAPSAck, dev.n.nextTransactionSequence()
}

var _ da.Gateway = (*gateway)(nil)
