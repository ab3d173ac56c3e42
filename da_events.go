package hearth

import (
	"context"

	"github.com/shimmeringbee/da"
)

// DeviceOnline is sent when traffic is seen from a device that was
// previously considered unavailable.
type DeviceOnline struct {
	Device da.Device
}

// DeviceOffline is sent when a device has been silent for longer than the
// presence monitor permits, or when it is restored from persistence and has
// not yet been heard from.
type DeviceOffline struct {
	Device da.Device
}

type eventSender interface {
	sendEvent(event any)
}

func (g *gateway) sendEvent(e any) {
	g.events <- e
}

func (g *gateway) ReadEvent(ctx context.Context) (any, error) {
	select {
	case e := <-g.events:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
