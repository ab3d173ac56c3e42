package hearth

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/davrell/hearth/implcaps"
	"github.com/davrell/hearth/implcaps/factory"
	"github.com/davrell/hearth/rules"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/retry"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/local/basic"
	"github.com/shimmeringbee/zigbee"
)

const enumerationQueueSize = 50
const enumerationConcurrency = 4
const maximumEnumerationTime = 1 * time.Minute
const defaultNetworkTimeout = 3000 * time.Millisecond
const defaultNetworkRetries = 5

type enumerator struct {
	gw *gateway

	c        chan *node
	stopChan chan struct{}
}

func (e *enumerator) start() {
	e.c = make(chan *node, enumerationQueueSize)
	e.stopChan = make(chan struct{})

	for i := 0; i < enumerationConcurrency; i++ {
		go e.worker()
	}
}

func (e *enumerator) stop() {
	if e.stopChan != nil {
		close(e.stopChan)
		e.stopChan = nil
	}
}

func (e *enumerator) queue(n *node) error {
	select {
	case e.c <- n:
		n.m.Lock()
		n.enumerating = true
		n.m.Unlock()

		for _, d := range e.gw.getDevicesOnNode(n) {
			e.gw.sendEvent(capabilities.EnumerateDeviceStart{Device: d})
		}

		return nil
	default:
		return fmt.Errorf("unable to queue enumeration request, likely channel full")
	}
}

func (e *enumerator) worker() {
	for {
		select {
		case <-e.stopChan:
			return
		case n := <-e.c:
			err := e.enumerate(n)

			n.m.Lock()
			n.enumerating = false
			n.m.Unlock()

			for _, d := range e.gw.getDevicesOnNode(n) {
				if err != nil {
					e.gw.sendEvent(capabilities.EnumerateDeviceFailure{Device: d, Error: err})
				} else {
					e.gw.sendEvent(capabilities.EnumerateDeviceSuccess{Device: d})
				}
			}
		}
	}
}

func (e *enumerator) enumerate(n *node) error {
	pctx, cancel := context.WithTimeout(e.gw.ctx, maximumEnumerationTime)
	defer cancel()

	// One enumeration per node at a time, rejoining devices can queue a
	// second pass while the first is in flight.
	if err := n.enumerationSem.Acquire(pctx, 1); err != nil {
		return fmt.Errorf("failed to acquire enumeration semaphore: %w", err)
	}
	defer n.enumerationSem.Release(1)

	ctx, end := e.gw.logger.Segment(pctx, "Node enumeration.", logwrap.Datum("IEEEAddress", n.address.String()))
	defer end()

	if err := e.interrogateNode(ctx, n); err != nil {
		e.gw.logger.Error(ctx, "Failed to interrogate node.", logwrap.Err(err))
		return err
	}

	e.allocateEndpointsToDevices(n)

	for _, d := range e.gw.getDevicesOnNode(n) {
		d.m.RLock()
		e.gw.sectionForDevice(d.address).Set("deviceId", int(d.deviceId))
		d.m.RUnlock()
	}

	for _, d := range e.gw.getDevicesOnNode(n) {
		dctx, dEnd := e.gw.logger.Segment(ctx, "Device enumeration.", logwrap.Datum("Identifier", d.address.String()))

		desired, err := e.runRules(n, d)
		if err != nil {
			dEnd()
			return err
		}

		e.updateCapabilitiesOnDevice(dctx, d, desired)
		dEnd()
	}

	return nil
}

func (e *enumerator) interrogateNode(ctx context.Context, n *node) error {
	e.gw.logger.Debug(ctx, "Enumerating node description.")

	if err := retry.Retry(ctx, defaultNetworkTimeout, defaultNetworkRetries, func(rctx context.Context) error {
		nd, err := e.gw.provider.QueryNodeDescription(rctx, n.address)

		if err == nil {
			n.m.Lock()
			n.inventory.description = &nd
			n.m.Unlock()
		}

		return err
	}); err != nil {
		return fmt.Errorf("failed to query node description: %w", err)
	}

	e.gw.logger.Debug(ctx, "Enumerating node endpoints.")

	var endpoints []zigbee.Endpoint

	if err := retry.Retry(ctx, defaultNetworkTimeout, defaultNetworkRetries, func(rctx context.Context) error {
		var err error
		endpoints, err = e.gw.provider.QueryNodeEndpoints(rctx, n.address)
		return err
	}); err != nil {
		return fmt.Errorf("failed to query node endpoints: %w", err)
	}

	details := map[zigbee.Endpoint]endpointDetails{}

	for _, endpoint := range endpoints {
		e.gw.logger.Debug(ctx, "Enumerating node endpoint description.", logwrap.Datum("Endpoint", endpoint))

		var description zigbee.EndpointDescription

		if err := retry.Retry(ctx, defaultNetworkTimeout, defaultNetworkRetries, func(rctx context.Context) error {
			var err error
			description, err = e.gw.provider.QueryNodeEndpointDescription(rctx, n.address, endpoint)
			return err
		}); err != nil {
			return fmt.Errorf("failed to query node endpoint description %d: %w", endpoint, err)
		}

		detail := endpointDetails{description: description}

		if containsClusterID(description.InClusterList, zcl.BasicId) {
			detail.productInformation = e.readProductInformation(ctx, n, endpoint)
		}

		details[endpoint] = detail
	}

	n.m.Lock()
	n.inventory.endpoints = details
	n.m.Unlock()

	return nil
}

func (e *enumerator) readProductInformation(ctx context.Context, n *node, endpoint zigbee.Endpoint) productData {
	var pd productData

	err := retry.Retry(ctx, defaultNetworkTimeout, defaultNetworkRetries, func(rctx context.Context) error {
		records, err := e.gw.zclCommunicator.ReadAttributes(rctx, n.address, n.useAPSAck, zcl.BasicId, zigbee.NoManufacturer, defaultGatewayHomeAutomationEndpoint, endpoint, n.nextTransactionSequence(), []zcl.AttributeID{basic.ManufacturerName, basic.ModelIdentifier})
		if err != nil {
			return err
		}

		for _, record := range records {
			if record.Status != 0 {
				continue
			}

			if value, ok := record.DataTypeValue.Value.(string); ok {
				switch record.Identifier {
				case basic.ManufacturerName:
					pd.manufacturer = value
				case basic.ModelIdentifier:
					pd.product = value
				}
			}
		}

		return nil
	})

	// Product information is advisory, enumeration continues without it.
	if err != nil {
		e.gw.logger.Warn(ctx, "Failed to read product information from basic cluster.", logwrap.Datum("Endpoint", endpoint), logwrap.Err(err))
	}

	return pd
}

// allocateEndpointsToDevices assigns each endpoint to a device carrying its
// device id, creating additional devices on the node as needed and removing
// devices whose endpoints have disappeared.
func (e *enumerator) allocateEndpointsToDevices(n *node) {
	n.m.RLock()
	endpoints := make([]zigbee.Endpoint, 0, len(n.inventory.endpoints))
	for endpoint := range n.inventory.endpoints {
		endpoints = append(endpoints, endpoint)
	}
	n.m.RUnlock()

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i] < endpoints[j]
	})

	for _, endpoint := range endpoints {
		n.m.RLock()
		description := n.inventory.endpoints[endpoint].description
		n.m.RUnlock()

		d := e.findDeviceWithDeviceId(n, description.DeviceID, description.DeviceVersion)

		d.m.Lock()
		if !containsEndpoint(d.endpoints, endpoint) {
			d.endpoints = append(d.endpoints, endpoint)
		}
		d.m.Unlock()
	}

	devices := e.gw.getDevicesOnNode(n)

	for _, d := range devices {
		d.m.Lock()

		existing := d.endpoints
		d.endpoints = nil

		for _, endpoint := range existing {
			n.m.RLock()
			detail, found := n.inventory.endpoints[endpoint]
			n.m.RUnlock()

			if found && detail.description.DeviceID == d.deviceId {
				d.endpoints = append(d.endpoints, endpoint)
			}
		}

		empty := len(d.endpoints) == 0
		d.m.Unlock()

		if empty && len(devices) > 1 {
			e.gw.removeDevice(e.gw.ctx, d.address)
		}
	}
}

func (e *enumerator) findDeviceWithDeviceId(n *node, deviceId uint16, deviceVersion uint8) *device {
	for _, d := range e.gw.getDevicesOnNode(n) {
		d.m.Lock()

		if d.deviceId == deviceId {
			d.m.Unlock()
			return d
		}

		if d.deviceId == 0 {
			d.deviceId = deviceId
			d.deviceVersion = deviceVersion
			d.m.Unlock()
			return d
		}

		d.m.Unlock()
	}

	d := e.gw.createNextDevice(n)

	d.m.Lock()
	d.deviceId = deviceId
	d.deviceVersion = deviceVersion
	d.m.Unlock()

	return d
}

// runRules evaluates the rule engine once per endpoint of the device, the
// first endpoint producing a capability wins.
func (e *enumerator) runRules(n *node, d *device) (map[string]map[string]any, error) {
	n.m.RLock()
	input := rules.Input{
		Product:  map[int]rules.InputProductData{},
		Endpoint: map[int]rules.InputEndpoint{},
	}

	if n.inventory.description != nil {
		input.Node = rules.InputNode{
			ManufacturerCode: uint16(n.inventory.description.ManufacturerCode),
			Type:             fmt.Sprintf("%v", n.inventory.description.LogicalType),
		}
	}

	for endpoint, detail := range n.inventory.endpoints {
		input.Endpoint[int(endpoint)] = rules.InputEndpoint{
			ID:          int(endpoint),
			ProfileID:   uint16(detail.description.ProfileID),
			DeviceID:    detail.description.DeviceID,
			InClusters:  clustersToUint16(detail.description.InClusterList),
			OutClusters: clustersToUint16(detail.description.OutClusterList),
		}

		input.Product[int(endpoint)] = rules.InputProductData{
			Name:         detail.productInformation.product,
			Manufacturer: detail.productInformation.manufacturer,
		}
	}
	n.m.RUnlock()

	d.m.RLock()
	deviceEndpoints := make([]zigbee.Endpoint, len(d.endpoints))
	copy(deviceEndpoints, d.endpoints)
	d.m.RUnlock()

	sort.Slice(deviceEndpoints, func(i, j int) bool {
		return deviceEndpoints[i] < deviceEndpoints[j]
	})

	desired := map[string]map[string]any{}

	for _, endpoint := range deviceEndpoints {
		input.Self = int(endpoint)

		output, err := e.gw.ruleEngine.Execute(input)
		if err != nil {
			return nil, fmt.Errorf("rule execution failed on endpoint %d: %w", endpoint, err)
		}

		for name, settings := range output.Capabilities {
			if _, present := desired[name]; !present {
				desired[name] = settings
			}
		}
	}

	return desired, nil
}

func (e *enumerator) updateCapabilitiesOnDevice(ctx context.Context, d *device, desired map[string]map[string]any) {
	for name, settings := range desired {
		flag, known := factory.Mapping[name]
		if !known {
			e.gw.logger.Warn(ctx, "Rules produced unknown capability implementation.", logwrap.Datum("CapabilityImplementation", name))
			continue
		}

		d.m.RLock()
		existing := d.capabilities[flag]
		d.m.RUnlock()

		if existing != nil && existing.ImplName() != name {
			e.detachCapability(ctx, d, existing, implcaps.NoLongerEnumerated)
			existing = nil
		}

		if existing != nil {
			attached, err := existing.Enumerate(ctx, settings)
			if err != nil {
				e.gw.logger.Warn(ctx, "Error thrown while re-enumerating capability.", logwrap.Datum("CapabilityImplementation", name), logwrap.Err(err))
			}

			if !attached {
				e.detachCapability(ctx, d, existing, implcaps.NoLongerEnumerated)
			}

			continue
		}

		c := factory.Create(name, e.gw.hi)

		s := e.gw.sectionForDevice(d.address).Section("capability", capabilities.StandardNames[flag])
		s.Set("implementation", name)

		c.Init(d, s.Section("data"))

		attached, err := c.Enumerate(ctx, settings)
		if err != nil {
			e.gw.logger.Warn(ctx, "Error thrown while enumerating capability.", logwrap.Datum("CapabilityImplementation", name), logwrap.Err(err))
		}

		if attached {
			e.gw.logger.Info(ctx, "Attached capability to device.", logwrap.Datum("CapabilityImplementation", name))

			d.m.Lock()
			e.gw.attachCapabilityToDevice(d, c)
			d.m.Unlock()
		} else {
			if err := c.Detach(ctx, implcaps.FailedAttach); err != nil {
				e.gw.logger.Warn(ctx, "Error thrown while detaching failed capability.", logwrap.Datum("CapabilityImplementation", name), logwrap.Err(err))
			}

			e.gw.sectionForDevice(d.address).Section("capability").SectionDelete(capabilities.StandardNames[flag])
		}
	}

	d.m.RLock()
	var stale []implcaps.HearthCapability
	for _, impl := range d.capabilities {
		if _, wanted := desired[impl.ImplName()]; !wanted {
			stale = append(stale, impl)
		}
	}
	d.m.RUnlock()

	for _, impl := range stale {
		e.gw.logger.Info(ctx, "Detaching capability no longer produced by enumeration.", logwrap.Datum("CapabilityImplementation", impl.ImplName()))
		e.detachCapability(ctx, d, impl, implcaps.NoLongerEnumerated)
	}
}

func (e *enumerator) detachCapability(ctx context.Context, d *device, c implcaps.HearthCapability, t implcaps.DetachType) {
	if err := c.Detach(ctx, t); err != nil {
		e.gw.logger.Warn(ctx, "Error thrown while detaching capability.", logwrap.Datum("CapabilityImplementation", c.ImplName()), logwrap.Err(err))
	}

	d.m.Lock()
	e.gw.detachCapabilityFromDevice(d, c)
	d.m.Unlock()
}

func containsClusterID(haystack []zigbee.ClusterID, needle zigbee.ClusterID) bool {
	for _, c := range haystack {
		if c == needle {
			return true
		}
	}

	return false
}

func containsEndpoint(haystack []zigbee.Endpoint, needle zigbee.Endpoint) bool {
	for _, e := range haystack {
		if e == needle {
			return true
		}
	}

	return false
}

func clustersToUint16(in []zigbee.ClusterID) []uint16 {
	out := make([]uint16, len(in))

	for i, c := range in {
		out[i] = uint16(c)
	}

	return out
}

// enumeratedDeviceAttachment exposes enumeration control for a device.
type enumeratedDeviceAttachment struct {
	node   *node
	device *device

	ed *enumerator
}

func (e *enumeratedDeviceAttachment) Capability() da.Capability {
	return capabilities.EnumerateDeviceFlag
}

func (e *enumeratedDeviceAttachment) Name() string {
	return capabilities.StandardNames[capabilities.EnumerateDeviceFlag]
}

func (e *enumeratedDeviceAttachment) Enumerate(_ context.Context) error {
	return e.ed.queue(e.node)
}

func (e *enumeratedDeviceAttachment) Status(_ context.Context) (capabilities.EnumerationStatus, error) {
	e.node.m.RLock()
	defer e.node.m.RUnlock()

	return capabilities.EnumerationStatus{Enumerating: e.node.enumerating}, nil
}
