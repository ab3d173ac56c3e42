package iaszone_sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davrell/hearth/implcaps"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/retry"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/local/ias_zone"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
)

var _ capabilities.AlarmSensor = (*Implementation)(nil)
var _ implcaps.HearthCapability = (*Implementation)(nil)

const ZoneTypeKey = "ZoneType"
const AlarmKeyPrefix = "Alarm"

const EnrollmentTimeout = 2 * time.Second
const EnrollmentRetries = 5

// Implementation enrolls against a device IAS Zone cluster, acting as the
// CIE, and translates zone status change notifications into alarm sensor
// state.
type Implementation struct {
	s  persistence.Section
	d  da.Device
	hi implcaps.HearthInterface
	l  logwrap.Logger

	m              *sync.RWMutex
	alarms         map[capabilities.SensorType]bool
	zoneType       uint16
	remoteEndpoint zigbee.Endpoint

	match      communicator.Match
	enrollment chan *ias_zone.ZoneEnrollRequest
}

func NewIASZoneSensor(hi implcaps.HearthInterface) *Implementation {
	return &Implementation{
		hi:         hi,
		l:          hi.Logger(),
		m:          &sync.RWMutex{},
		alarms:     map[capabilities.SensorType]bool{},
		enrollment: make(chan *ias_zone.ZoneEnrollRequest, 1),
	}
}

func (i *Implementation) Capability() da.Capability {
	return capabilities.AlarmSensorFlag
}

func (i *Implementation) Name() string {
	return capabilities.StandardNames[capabilities.AlarmSensorFlag]
}

func (i *Implementation) ImplName() string {
	return "ZCLIASZoneSensor"
}

func (i *Implementation) Init(d da.Device, s persistence.Section) {
	i.d = d
	i.s = s

	i.hi.ZCLRegister(ias_zone.Register)

	i.match = communicator.NewMatch(i.zclFilter, i.zclMessage)
	i.hi.ZCLCommunicator().RegisterMatch(i.match)
}

func (i *Implementation) Load(_ context.Context) (bool, error) {
	i.m.Lock()
	defer i.m.Unlock()

	v, ok := i.s.Int(implcaps.DataKeyZigbeeEndpoint)
	if !ok {
		return false, fmt.Errorf("ias zone sensor missing config parameter: %s", implcaps.DataKeyZigbeeEndpoint)
	}
	i.remoteEndpoint = zigbee.Endpoint(v)

	zt, ok := i.s.Int(ZoneTypeKey)
	if !ok {
		return false, fmt.Errorf("ias zone sensor missing config parameter: %s", ZoneTypeKey)
	}
	i.zoneType = uint16(zt)

	i.alarms = map[capabilities.SensorType]bool{}
	alarmSection := i.s.Section(AlarmKeyPrefix)
	for st, name := range capabilities.NameMapping {
		if v, ok := alarmSection.Bool(name); ok {
			i.alarms[st] = v
		}
	}

	return true, nil
}

func (i *Implementation) Enumerate(ctx context.Context, m map[string]any) (bool, error) {
	endpoint := implcaps.GetEndpoint(m, implcaps.DataKeyZigbeeEndpoint, 1)

	i.m.Lock()
	i.remoteEndpoint = endpoint
	i.m.Unlock()

	i.s.Set(implcaps.DataKeyZigbeeEndpoint, int(endpoint))

	if err := i.writeCIEAddress(ctx); err != nil {
		return false, err
	}

	i.l.Debug(ctx, "Waiting for zone enrollment request from device.")

	var enrollReq *ias_zone.ZoneEnrollRequest

	select {
	case enrollReq = <-i.enrollment:
	case <-ctx.Done():
		return false, fmt.Errorf("timed out waiting for zone enrollment request: %w", ctx.Err())
	}

	i.m.Lock()
	i.zoneType = enrollReq.ZoneType
	i.m.Unlock()

	i.s.Set(ZoneTypeKey, int(enrollReq.ZoneType))

	if err := i.sendEnrollResponse(ctx); err != nil {
		return false, err
	}

	if err := i.confirmEnrollment(ctx); err != nil {
		return false, err
	}

	i.l.Info(ctx, "Zone enrollment completed.", logwrap.Datum("ZoneType", enrollReq.ZoneType))

	return true, nil
}

func (i *Implementation) Detach(ctx context.Context, t implcaps.DetachType) error {
	i.hi.ZCLCommunicator().UnregisterMatch(i.match)

	if t == implcaps.NoLongerEnumerated {
		// Clearing the CIE address lets the device enroll with another
		// controller, best effort as it may already be unreachable.
		ieee, localEndpoint, ack, seq := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)

		if _, err := i.hi.ZCLCommunicator().WriteAttributes(ctx, ieee, ack, zcl.IASZoneId, zigbee.NoManufacturer, localEndpoint, i.remoteEndpoint, seq, map[zcl.AttributeID]zcl.AttributeDataTypeValue{
			ias_zone.IASCIEAddress: {DataType: zcl.TypeIEEEAddress, Value: zigbee.IEEEAddress(0)},
		}); err != nil {
			i.l.Warn(ctx, "Failed to clear CIE address on detach.", logwrap.Err(err))
		}
	}

	return nil
}

func (i *Implementation) Status(_ context.Context) (map[capabilities.SensorType]bool, error) {
	i.m.RLock()
	defer i.m.RUnlock()

	states := map[capabilities.SensorType]bool{}
	for k, v := range i.alarms {
		states[k] = v
	}

	return states, nil
}

func (i *Implementation) writeCIEAddress(ctx context.Context) error {
	ieee, localEndpoint, ack, seq := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)
	cieAddress := i.hi.AdapterAddress()

	i.l.Debug(ctx, "Writing CIE address to device.", logwrap.Datum("CIEAddress", cieAddress.String()))

	results, err := i.hi.ZCLCommunicator().WriteAttributes(ctx, ieee, ack, zcl.IASZoneId, zigbee.NoManufacturer, localEndpoint, i.remoteEndpoint, seq, map[zcl.AttributeID]zcl.AttributeDataTypeValue{
		ias_zone.IASCIEAddress: {DataType: zcl.TypeIEEEAddress, Value: cieAddress},
	})
	if err != nil {
		return fmt.Errorf("failed to write CIE address: %w", err)
	}

	for _, record := range results {
		if record.Identifier == ias_zone.IASCIEAddress && record.Status != 0 {
			return fmt.Errorf("device rejected CIE address write: status %d", record.Status)
		}
	}

	return nil
}

func (i *Implementation) sendEnrollResponse(ctx context.Context) error {
	ieee, localEndpoint, ack, seq := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)

	msg := zcl.Message{
		FrameType:           zcl.FrameLocal,
		Direction:           zcl.ClientToServer,
		TransactionSequence: seq,
		Manufacturer:        zigbee.NoManufacturer,
		ClusterID:           zcl.IASZoneId,
		SourceEndpoint:      localEndpoint,
		DestinationEndpoint: i.remoteEndpoint,
		Command:             &ias_zone.ZoneEnrollResponse{},
	}

	if err := i.hi.ZCLCommunicator().Request(ctx, ieee, ack, msg); err != nil {
		return fmt.Errorf("failed to send zone enroll response: %w", err)
	}

	return nil
}

func (i *Implementation) confirmEnrollment(pctx context.Context) error {
	return retry.Retry(pctx, EnrollmentTimeout, EnrollmentRetries, func(ctx context.Context) error {
		ieee, localEndpoint, ack, seq := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)

		reads, err := i.hi.ZCLCommunicator().ReadAttributes(ctx, ieee, ack, zcl.IASZoneId, zigbee.NoManufacturer, localEndpoint, i.remoteEndpoint, seq, []zcl.AttributeID{ias_zone.ZoneState, ias_zone.ZoneStatus})
		if err != nil {
			return err
		}

		for _, record := range reads {
			if record.Identifier == ias_zone.ZoneState && record.Status == 0 && record.DataTypeValue.DataType == zcl.TypeEnum8 {
				if state, ok := record.DataTypeValue.Value.(uint8); ok && state == 1 {
					return nil
				}
			}
		}

		return fmt.Errorf("device not yet enrolled")
	})
}

func (i *Implementation) zclFilter(a zigbee.IEEEAddress, _ zigbee.ApplicationMessage, m zcl.Message) bool {
	ieee, localEndpoint, _, _ := i.hi.TransmissionLookup(i.d, zigbee.ProfileHomeAutomation)

	return a == ieee &&
		m.ClusterID == zcl.IASZoneId &&
		m.DestinationEndpoint == localEndpoint
}

func (i *Implementation) zclMessage(m communicator.MessageWithSource) {
	switch cmd := m.Message.Command.(type) {
	case *ias_zone.ZoneEnrollRequest:
		select {
		case i.enrollment <- cmd:
		default:
		}
	case *ias_zone.ZoneStatusChangeNotification:
		i.zoneStatusChange(cmd)
	}
}

func (i *Implementation) zoneStatusChange(cmd *ias_zone.ZoneStatusChangeNotification) {
	i.m.Lock()

	primary, secondary := zoneTypeToSensorTypes(i.zoneType)

	alarms := map[capabilities.SensorType]bool{
		primary:                           cmd.Alarm1,
		capabilities.DeviceTamper:         cmd.Tamper,
		capabilities.DeviceBatteryLow:     cmd.BatteryLow,
		capabilities.DeviceFailure:        cmd.Trouble,
		capabilities.DeviceMainsFailure:   cmd.ACMainsFault,
		capabilities.DeviceTest:           cmd.TestMode,
		capabilities.DeviceBatteryFailure: cmd.BatteryDefect,
	}

	if secondary != unmappedSensorType {
		alarms[secondary] = cmd.Alarm2
	}

	i.alarms = alarms

	alarmSection := i.s.Section(AlarmKeyPrefix)
	for st, v := range alarms {
		alarmSection.Set(st.String(), v)
	}

	i.m.Unlock()

	i.hi.SendEvent(capabilities.AlarmSensorUpdate{
		Device: i.d,
		States: alarms,
	})
}

const unmappedSensorType = capabilities.SensorType(0xffff)

func zoneTypeToSensorTypes(zoneType uint16) (capabilities.SensorType, capabilities.SensorType) {
	switch zoneType {
	case 0x0000:
		return capabilities.SecurityInfrastructure, unmappedSensorType
	case 0x000d:
		return capabilities.SecurityMotion, capabilities.SecurityOther
	case 0x0015:
		return capabilities.SecurityContact, capabilities.SecurityOther
	case 0x0028:
		return capabilities.FireOther, unmappedSensorType
	case 0x002a:
		return capabilities.General, unmappedSensorType
	case 0x002b:
		return capabilities.GasCarbonMonoxide, capabilities.General
	case 0x002c:
		return capabilities.HealthFall, capabilities.GeneralEmergency
	case 0x002d:
		return capabilities.SecurityVibration, capabilities.SecurityVibration
	case 0x010f, 0x0115, 0x021d:
		return capabilities.SecurityPanic, capabilities.GeneralEmergency
	case 0x0225:
		return capabilities.GeneralWarningDevice, unmappedSensorType
	case 0x0226:
		return capabilities.SecurityGlassBreak, unmappedSensorType
	case 0x0229:
		return capabilities.SecurityInfrastructure, unmappedSensorType
	default:
		return unmappedSensorType, unmappedSensorType
	}
}
