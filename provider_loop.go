package hearth

import (
	"context"
	"errors"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zigbee"
)

func (g *gateway) providerLoop() {
	for {
		event, err := g.provider.ReadEvent(g.ctx)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				g.logger.Info(g.ctx, "Provider loop terminating due to cancelled context.")
			} else {
				g.logger.Error(g.ctx, "Failed to read event from zigbee provider.", logwrap.Err(err))
			}
			return
		}

		switch e := event.(type) {
		case zigbee.NodeJoinEvent:
			g.receiveNodeJoinEvent(e)
		case zigbee.NodeLeaveEvent:
			g.receiveNodeLeaveEvent(e)
		case zigbee.NodeIncomingMessageEvent:
			g.receiveNodeIncomingMessageEvent(e)
		}
	}
}

func (g *gateway) receiveNodeJoinEvent(e zigbee.NodeJoinEvent) {
	n, created := g.createNode(e.IEEEAddress)

	if created {
		g.logger.Info(g.ctx, "Node has joined zigbee network.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))

		d := g.createNextDevice(n)
		g.logger.Info(g.ctx, "Created default device.", logwrap.Datum("Identifier", d.address.String()))
	} else {
		// A join for a known node is a rejoin, the device may have been
		// reset and lost its reporting configuration.
		g.logger.Info(g.ctx, "Node has rejoined zigbee network.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))
	}

	g.presence.markSeen(n)

	if err := g.ed.queue(n); err != nil {
		g.logger.Error(g.ctx, "Failed to queue enumeration of joining node.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()), logwrap.Err(err))
	}
}

func (g *gateway) receiveNodeLeaveEvent(e zigbee.NodeLeaveEvent) {
	g.logger.Info(g.ctx, "Node has left zigbee network.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))

	if n := g.getNode(e.IEEEAddress); n != nil {
		for _, d := range g.getDevicesOnNode(n) {
			g.logger.Info(g.ctx, "Removing device upon node leaving zigbee network.", logwrap.Datum("Identifier", d.address.String()))
			g.removeDevice(g.ctx, d.address)
		}

		_ = g.removeNode(e.IEEEAddress)
	} else {
		g.logger.Warn(g.ctx, "Received leave message for unknown node from provider.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))
	}
}

func (g *gateway) receiveNodeIncomingMessageEvent(e zigbee.NodeIncomingMessageEvent) {
	if n := g.getNode(e.IEEEAddress); n != nil {
		g.presence.markSeen(n)
	}

	if err := g.zclCommunicator.ProcessIncomingMessage(e); err != nil {
		g.logger.Warn(g.ctx, "Failed to process incoming message from node.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()), logwrap.Err(err))
	}
}
