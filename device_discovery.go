package hearth

import (
	"context"
	"sync"
	"time"

	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
)

type deviceDiscovery struct {
	gateway *gateway

	m              sync.Mutex
	discovering    bool
	allowTimer     *time.Timer
	allowExpiresAt time.Time
}

func (d *deviceDiscovery) Capability() da.Capability {
	return capabilities.DeviceDiscoveryFlag
}

func (d *deviceDiscovery) Name() string {
	return capabilities.StandardNames[capabilities.DeviceDiscoveryFlag]
}

func (d *deviceDiscovery) Enable(ctx context.Context, duration time.Duration) error {
	if err := d.gateway.provider.PermitJoin(ctx, true); err != nil {
		return err
	}

	d.m.Lock()
	defer d.m.Unlock()

	if d.allowTimer != nil {
		d.allowTimer.Stop()
	}

	d.allowExpiresAt = time.Now().Add(duration)
	d.allowTimer = time.AfterFunc(duration, func() {
		if err := d.Disable(d.gateway.ctx); err != nil {
			d.gateway.logger.Error(d.gateway.ctx, "Failed to deny discovery after duration expired.", logwrap.Err(err))
		}
	})

	d.discovering = true

	d.gateway.sendEvent(capabilities.DeviceDiscoveryAllowed{
		Gateway:  d.gateway,
		Duration: duration,
	})
	return nil
}

func (d *deviceDiscovery) Disable(ctx context.Context) error {
	if err := d.gateway.provider.DenyJoin(ctx); err != nil {
		return err
	}

	d.m.Lock()
	defer d.m.Unlock()

	d.discovering = false
	d.allowTimer = nil

	d.gateway.sendEvent(capabilities.DeviceDiscoveryDenied{
		Gateway: d.gateway,
	})
	return nil
}

func (d *deviceDiscovery) Status(_ context.Context) (capabilities.DeviceDiscoveryStatus, error) {
	d.m.Lock()
	defer d.m.Unlock()

	remainingDuration := time.Until(d.allowExpiresAt)
	if remainingDuration < 0 {
		remainingDuration = 0
	}

	return capabilities.DeviceDiscoveryStatus{Discovering: d.discovering, RemainingDuration: remainingDuration}, nil
}
