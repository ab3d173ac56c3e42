package hearth

import (
	"time"

	"github.com/shimmeringbee/logwrap"
)

const presenceCheckInterval = 1 * time.Minute
const presenceTimeout = 15 * time.Minute

// presenceMonitor tracks when traffic was last seen from each node, raising
// DeviceOnline and DeviceOffline events as devices appear and go silent.
// Devices restored from persistence are offline until heard from.
type presenceMonitor struct {
	gw *gateway

	ticker   *time.Ticker
	stopChan chan struct{}
}

func (p *presenceMonitor) start() {
	p.ticker = time.NewTicker(presenceCheckInterval)
	p.stopChan = make(chan struct{})

	go p.loop()
}

func (p *presenceMonitor) stop() {
	if p.stopChan != nil {
		p.ticker.Stop()
		close(p.stopChan)
		p.stopChan = nil
	}
}

func (p *presenceMonitor) loop() {
	for {
		select {
		case <-p.stopChan:
			return
		case <-p.ticker.C:
			p.sweep()
		}
	}
}

func (p *presenceMonitor) markSeen(n *node) {
	n.m.Lock()
	n.lastSeen = time.Now()
	n.m.Unlock()

	for _, d := range p.gw.getDevicesOnNode(n) {
		d.m.Lock()
		wasOffline := !d.online
		d.online = true
		d.m.Unlock()

		if wasOffline {
			p.gw.logger.Info(p.gw.ctx, "Device is now online.", logwrap.Datum("Identifier", d.address.String()))
			p.gw.sendEvent(DeviceOnline{Device: d})
		}
	}
}

func (p *presenceMonitor) sweep() {
	p.gw.nodeLock.RLock()
	nodes := make([]*node, 0, len(p.gw.node))
	for _, n := range p.gw.node {
		nodes = append(nodes, n)
	}
	p.gw.nodeLock.RUnlock()

	for _, n := range nodes {
		n.m.RLock()
		silent := !n.lastSeen.IsZero() && time.Since(n.lastSeen) > presenceTimeout
		n.m.RUnlock()

		if !silent {
			continue
		}

		for _, d := range p.gw.getDevicesOnNode(n) {
			d.m.Lock()
			wasOnline := d.online
			d.online = false
			d.m.Unlock()

			if wasOnline {
				p.gw.logger.Info(p.gw.ctx, "Device is now offline, no traffic seen within timeout.", logwrap.Datum("Identifier", d.address.String()))
				p.gw.sendEvent(DeviceOffline{Device: d})
			}
		}
	}
}
