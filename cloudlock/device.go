package cloudlock

import (
	"context"
	"sync"

	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
)

type LockIdentifier string

func (l LockIdentifier) String() string {
	return string(l)
}

// Lock is one cloud lock exposed as a da.Device. Lock control is surfaced
// through the OnOff capability, on meaning locked, and the door contact
// through the alarm sensor capability.
type Lock struct {
	data *Data
	id   string

	m            sync.RWMutex
	name         string
	manufacturer string
	model        string
	serial       string
	locked       bool
	doorOpen     bool
}

func (l *Lock) Gateway() da.Gateway {
	return l.data
}

func (l *Lock) Identifier() da.Identifier {
	return LockIdentifier(l.id)
}

func (l *Lock) Capabilities() []da.Capability {
	return []da.Capability{
		capabilities.OnOffFlag,
		capabilities.AlarmSensorFlag,
		capabilities.ProductInformationFlag,
	}
}

func (l *Lock) Capability(c da.Capability) any {
	switch c {
	case capabilities.OnOffFlag:
		return &lockControl{lock: l}
	case capabilities.AlarmSensorFlag:
		return &doorSense{lock: l}
	case capabilities.ProductInformationFlag:
		return &lockProductInformation{lock: l}
	default:
		return nil
	}
}

var _ da.Device = (*Lock)(nil)

type lockControl struct {
	lock *Lock
}

func (c *lockControl) Capability() da.Capability {
	return capabilities.OnOffFlag
}

func (c *lockControl) Name() string {
	return capabilities.StandardNames[capabilities.OnOffFlag]
}

func (c *lockControl) On(ctx context.Context) error {
	if err := c.lock.data.session.SetLockStatus(ctx, c.lock.id, lockStatusLocked); err != nil {
		return err
	}

	c.lock.data.update(c.lock.id, lockStatusLocked, "")
	return nil
}

func (c *lockControl) Off(ctx context.Context) error {
	if err := c.lock.data.session.SetLockStatus(ctx, c.lock.id, lockStatusUnlocked); err != nil {
		return err
	}

	c.lock.data.update(c.lock.id, lockStatusUnlocked, "")
	return nil
}

func (c *lockControl) Status(_ context.Context) (bool, error) {
	c.lock.m.RLock()
	defer c.lock.m.RUnlock()

	return c.lock.locked, nil
}

var _ capabilities.OnOff = (*lockControl)(nil)

type doorSense struct {
	lock *Lock
}

func (d *doorSense) Capability() da.Capability {
	return capabilities.AlarmSensorFlag
}

func (d *doorSense) Name() string {
	return capabilities.StandardNames[capabilities.AlarmSensorFlag]
}

func (d *doorSense) Status(_ context.Context) (map[capabilities.SensorType]bool, error) {
	d.lock.m.RLock()
	defer d.lock.m.RUnlock()

	return map[capabilities.SensorType]bool{capabilities.SecurityContact: d.lock.doorOpen}, nil
}

var _ capabilities.AlarmSensor = (*doorSense)(nil)

type lockProductInformation struct {
	lock *Lock
}

func (p *lockProductInformation) Capability() da.Capability {
	return capabilities.ProductInformationFlag
}

func (p *lockProductInformation) Name() string {
	return capabilities.StandardNames[capabilities.ProductInformationFlag]
}

func (p *lockProductInformation) Get(_ context.Context) (capabilities.ProductInfo, error) {
	p.lock.m.RLock()
	defer p.lock.m.RUnlock()

	return capabilities.ProductInfo{
		Name:         p.lock.name,
		Manufacturer: p.lock.manufacturer,
		Version:      p.lock.model,
		Serial:       p.lock.serial,
	}, nil
}

var _ capabilities.ProductInformation = (*lockProductInformation)(nil)
