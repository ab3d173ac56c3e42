package onoff_sensor

import (
	"context"
	"sync"
	"time"

	"github.com/davrell/hearth/attribute"
	"github.com/davrell/hearth/implcaps"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/local/onoff"
	"github.com/shimmeringbee/zigbee"
)

var _ capabilities.OnOff = (*Implementation)(nil)
var _ implcaps.HearthCapability = (*Implementation)(nil)

const StateKey = "State"

// Implementation tracks the OnOff attribute of a device, the last reported
// state persists across restarts. On and Off commands are available for
// devices which accept them.
type Implementation struct {
	s  persistence.Section
	d  da.Device
	hi implcaps.HearthInterface
	am attribute.Monitor

	m              *sync.RWMutex
	state          bool
	remoteEndpoint zigbee.Endpoint
}

func NewOnOffSensor(hi implcaps.HearthInterface) *Implementation {
	return &Implementation{hi: hi, m: &sync.RWMutex{}}
}

func (i *Implementation) Capability() da.Capability {
	return capabilities.OnOffFlag
}

func (i *Implementation) Name() string {
	return capabilities.StandardNames[capabilities.OnOffFlag]
}

func (i *Implementation) ImplName() string {
	return "ZCLOnOffSensor"
}

func (i *Implementation) Init(d da.Device, s persistence.Section) {
	i.d = d
	i.s = s

	i.hi.ZCLRegister(onoff.Register)

	i.am = i.hi.NewAttributeMonitor()
	i.am.Init(s.Section("AttributeMonitor", "OnOffState"), d, i.update)
}

func (i *Implementation) Load(ctx context.Context) (bool, error) {
	i.m.Lock()
	i.state, _ = i.s.Bool(StateKey)
	if v, ok := i.s.Int(implcaps.DataKeyZigbeeEndpoint); ok {
		i.remoteEndpoint = zigbee.Endpoint(v)
	}
	i.m.Unlock()

	if err := i.am.Load(ctx); err != nil {
		return false, err
	}

	return true, nil
}

func (i *Implementation) Enumerate(ctx context.Context, m map[string]any) (bool, error) {
	endpoint := implcaps.GetEndpoint(m, implcaps.DataKeyZigbeeEndpoint, 1)

	i.m.Lock()
	i.remoteEndpoint = endpoint
	i.m.Unlock()

	i.s.Set(implcaps.DataKeyZigbeeEndpoint, int(endpoint))

	reporting := attribute.ReportingConfig{
		Mode:             attribute.AttemptConfigureReporting,
		MinimumInterval:  0,
		MaximumInterval:  5 * time.Minute,
		ReportableChange: nil,
	}

	polling := attribute.PollingConfig{
		Mode:     attribute.PollIfReportingFailed,
		Interval: 5 * time.Second,
	}

	if err := i.am.Attach(ctx, endpoint, zcl.OnOffId, onoff.OnOff, zcl.TypeBoolean, reporting, polling); err != nil {
		return false, err
	}

	return true, nil
}

func (i *Implementation) Detach(ctx context.Context, detachType implcaps.DetachType) error {
	return i.am.Detach(ctx, detachType == implcaps.NoLongerEnumerated)
}

func (i *Implementation) On(ctx context.Context) error {
	return i.cmd(ctx, &onoff.On{})
}

func (i *Implementation) Off(ctx context.Context) error {
	return i.cmd(ctx, &onoff.Off{})
}

func (i *Implementation) cmd(ctx context.Context, cmd any) error {
	ieee, localEndpoint, ack, seq := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)

	i.m.RLock()
	remoteEndpoint := i.remoteEndpoint
	i.m.RUnlock()

	msg := zcl.Message{
		FrameType:           zcl.FrameLocal,
		Direction:           zcl.ClientToServer,
		TransactionSequence: seq,
		Manufacturer:        zigbee.NoManufacturer,
		ClusterID:           zcl.OnOffId,
		SourceEndpoint:      localEndpoint,
		DestinationEndpoint: remoteEndpoint,
		Command:             cmd,
	}

	return i.hi.ZCLCommunicator().Request(ctx, ieee, ack, msg)
}

func (i *Implementation) Status(_ context.Context) (bool, error) {
	i.m.RLock()
	defer i.m.RUnlock()

	return i.state, nil
}

func (i *Implementation) update(_ zcl.AttributeID, v zcl.AttributeDataTypeValue) {
	if v.DataType != zcl.TypeBoolean {
		return
	}

	state, ok := v.Value.(bool)
	if !ok {
		return
	}

	i.m.Lock()
	changed := state != i.state
	i.state = state
	i.m.Unlock()

	if changed {
		i.s.Set(StateKey, state)

		i.hi.SendEvent(capabilities.OnOffState{
			Device: i.d,
			State:  state,
		})
	}
}
