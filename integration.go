package hearth

import (
	"context"

	"github.com/davrell/hearth/entry"
	"github.com/davrell/hearth/rules"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/zigbee"
)

// Integration adapts the zigbee gateway to the entry manager, so zigbee
// adapters load, retry and unload through the same lifecycle as cloud
// integrations.
type Integration struct {
	provider zigbee.Provider
	rules    *rules.Engine
	logger   logwrap.Logger
}

func NewIntegration(p zigbee.Provider, e *rules.Engine) *Integration {
	return &Integration{
		provider: p,
		rules:    e,
		logger:   logwrap.New(discard.Discard()),
	}
}

func (i *Integration) WithLogger(l logwrap.Logger) *Integration {
	i.logger = l
	return i
}

func (i *Integration) Name() string {
	return "zigbee"
}

// Setup constructs a gateway on the entry's settings section and starts it.
// Provider failures during start surface as entry.NotReadyError so the
// manager retries once the adapter is reachable.
func (i *Integration) Setup(ctx context.Context, e *entry.Entry) (entry.Runtime, error) {
	// The gateway outlives the setup call, it is stopped by the runtime.
	gw := New(context.WithoutCancel(ctx), e.Settings(), i.provider, i.rules)
	gw.WithLogWrapLogger(i.logger)

	if err := gw.Start(); err != nil {
		return nil, entry.NotReadyError{Inner: err}
	}

	return &gatewayRuntime{gw: gw}, nil
}

type gatewayRuntime struct {
	gw Gateway
}

// Gateway exposes the underlying da.Gateway to the embedding application.
func (r *gatewayRuntime) Gateway() da.Gateway {
	return r.gw
}

func (r *gatewayRuntime) Stop(_ context.Context) error {
	return r.gw.Stop()
}

func (r *gatewayRuntime) Device(identifier string) bool {
	for _, d := range r.gw.Devices() {
		if d.Identifier().String() == identifier {
			return true
		}
	}

	return false
}

var _ entry.Integration = (*Integration)(nil)
var _ entry.Runtime = (*gatewayRuntime)(nil)
