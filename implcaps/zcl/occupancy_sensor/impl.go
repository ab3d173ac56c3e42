package occupancy_sensor

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
	"github.com/shimmeringbee/zigbee"
)

var _ capabilities.AlarmSensor = (*Implementation)(nil)
var _ implcaps.HearthCapability = (*Implementation)(nil)

// Occupancy Sensing cluster, not covered by the command library.
const OccupancySensingClusterID = zigbee.ClusterID(0x0406)
const OccupancyAttributeID = zcl.AttributeID(0x0000)

const OccupiedKey = "Occupied"

// Implementation monitors the Occupancy attribute of a device Occupancy
// Sensing cluster, exposing bit 0 as a motion alarm.
type Implementation struct {
	s  persistence.Section
	d  da.Device
	hi implcaps.HearthInterface
	am attribute.Monitor

	m        *sync.RWMutex
	occupied bool
}

func NewOccupancySensor(hi implcaps.HearthInterface) *Implementation {
	return &Implementation{hi: hi, m: &sync.RWMutex{}}
}

func (i *Implementation) Capability() da.Capability {
	return capabilities.AlarmSensorFlag
}

func (i *Implementation) Name() string {
	return capabilities.StandardNames[capabilities.AlarmSensorFlag]
}

func (i *Implementation) ImplName() string {
	return "ZCLOccupancySensor"
}

func (i *Implementation) Init(d da.Device, s persistence.Section) {
	i.d = d
	i.s = s

	i.am = i.hi.NewAttributeMonitor()
	i.am.Init(s.Section("AttributeMonitor", "Occupancy"), d, i.update)
}

func (i *Implementation) Load(ctx context.Context) (bool, error) {
	i.m.Lock()
	i.occupied, _ = i.s.Bool(OccupiedKey)
	i.m.Unlock()

	if err := i.am.Load(ctx); err != nil {
		return false, err
	}

	return true, nil
}

func (i *Implementation) Enumerate(ctx context.Context, m map[string]any) (bool, error) {
	endpoint := implcaps.GetEndpoint(m, implcaps.DataKeyZigbeeEndpoint, 1)

	reporting := attribute.ReportingConfig{
		Mode:             attribute.AttemptConfigureReporting,
		MinimumInterval:  0,
		MaximumInterval:  5 * time.Minute,
		ReportableChange: uint8(1),
	}

	polling := attribute.PollingConfig{
		Mode:     attribute.PollIfReportingFailed,
		Interval: 30 * time.Second,
	}

	if err := i.am.Attach(ctx, endpoint, OccupancySensingClusterID, OccupancyAttributeID, zcl.TypeBitmap8, reporting, polling); err != nil {
		return false, err
	}

	return true, nil
}

func (i *Implementation) Detach(ctx context.Context, detachType implcaps.DetachType) error {
	return i.am.Detach(ctx, detachType == implcaps.NoLongerEnumerated)
}

func (i *Implementation) Status(_ context.Context) (map[capabilities.SensorType]bool, error) {
	i.m.RLock()
	defer i.m.RUnlock()

	return map[capabilities.SensorType]bool{
		capabilities.SecurityMotion: i.occupied,
	}, nil
}

func (i *Implementation) update(_ zcl.AttributeID, v zcl.AttributeDataTypeValue) {
	if v.DataType != zcl.TypeBitmap8 {
		return
	}

	value, ok := v.Value.(uint64)
	if !ok {
		return
	}

	occupied := value&0x01 == 0x01

	i.m.Lock()
	changed := occupied != i.occupied
	i.occupied = occupied
	i.m.Unlock()

	if changed {
		i.s.Set(OccupiedKey, occupied)

		i.hi.SendEvent(capabilities.AlarmSensorUpdate{
			Device: i.d,
			States: map[capabilities.SensorType]bool{
				capabilities.SecurityMotion: occupied,
			},
		})
	}
}
