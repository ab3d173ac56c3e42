package cloudlock

import (
	"context"
	"errors"
	"sync"

	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
)

const lockStatusLocked = "locked"
const lockStatusUnlocked = "unlocked"
const doorStateOpen = "open"

// Data is the runtime attached to a loaded cloud lock entry: the device
// index built from the cloud inventory, surfaced as a da.Gateway so locks
// appear alongside zigbee devices.
type Data struct {
	session *Session
	logger  logwrap.Logger
	stream  *Stream

	selfDevice da.BaseDevice
	events     chan any

	m     sync.RWMutex
	locks map[string]*Lock
}

func NewData(session *Session, logger logwrap.Logger) *Data {
	d := &Data{
		session: session,
		logger:  logger,
		events:  make(chan any, 100),
		locks:   map[string]*Lock{},
	}

	d.selfDevice = da.BaseDevice{
		DeviceGateway:    d,
		DeviceIdentifier: LockIdentifier("cloudlock"),
	}

	return d
}

// Populate builds the device index from the cloud inventory.
func (d *Data) Populate(ctx context.Context) error {
	details, err := d.session.Locks(ctx)
	if err != nil {
		return err
	}

	d.m.Lock()
	defer d.m.Unlock()

	for _, detail := range details {
		l := &Lock{
			data:         d,
			id:           detail.Id,
			name:         detail.Name,
			manufacturer: detail.Manufacturer,
			model:        detail.Model,
			serial:       detail.Serial,
			locked:       detail.Status == lockStatusLocked,
			doorOpen:     detail.DoorState == doorStateOpen,
		}

		d.locks[detail.Id] = l
		d.sendEvent(da.DeviceAdded{Device: l})
	}

	return nil
}

func (d *Data) AttachStream(s *Stream) {
	d.stream = s
}

// Device reports whether the index knows an identifier, used by the entry
// manager to arbitrate removal.
func (d *Data) Device(identifier string) bool {
	d.m.RLock()
	defer d.m.RUnlock()

	_, found := d.locks[identifier]
	return found
}

func (d *Data) Stop(ctx context.Context) error {
	if d.stream != nil {
		d.stream.Stop()
	}

	return nil
}

func (d *Data) Self() da.Device {
	return d.selfDevice
}

func (d *Data) Devices() []da.Device {
	d.m.RLock()
	defer d.m.RUnlock()

	devices := []da.Device{d.selfDevice}
	for _, l := range d.locks {
		devices = append(devices, l)
	}

	return devices
}

func (d *Data) Start() error {
	return nil
}

func (d *Data) Capabilities() []da.Capability {
	return nil
}

func (d *Data) Capability(_ da.Capability) any {
	return nil
}

func (d *Data) ReadEvent(ctx context.Context) (any, error) {
	select {
	case e := <-d.events:
		return e, nil
	case <-ctx.Done():
		return nil, errors.New("context expired while reading event")
	}
}

func (d *Data) sendEvent(e any) {
	select {
	case d.events <- e:
	default:
		d.logger.Warn(context.Background(), "Event buffer full, dropping event.")
	}
}

// update applies a state change pushed by the event stream.
func (d *Data) update(id string, status string, doorState string) {
	d.m.RLock()
	l := d.locks[id]
	d.m.RUnlock()

	if l == nil {
		d.logger.Warn(context.Background(), "State change received for unknown lock.", logwrap.Datum("Identifier", id))
		return
	}

	l.m.Lock()

	lockChanged := false
	if status == lockStatusLocked || status == lockStatusUnlocked {
		locked := status == lockStatusLocked
		lockChanged = locked != l.locked
		l.locked = locked
	}

	doorChanged := false
	if doorState != "" {
		doorOpen := doorState == doorStateOpen
		doorChanged = doorOpen != l.doorOpen
		l.doorOpen = doorOpen
	}

	locked := l.locked
	doorOpen := l.doorOpen
	l.m.Unlock()

	if lockChanged {
		d.sendEvent(capabilities.OnOffState{Device: l, State: locked})
	}

	if doorChanged {
		d.sendEvent(capabilities.AlarmSensorUpdate{
			Device: l,
			States: map[capabilities.SensorType]bool{capabilities.SecurityContact: doorOpen},
		})
	}
}

var _ da.Gateway = (*Data)(nil)
