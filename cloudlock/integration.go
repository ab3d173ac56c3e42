package cloudlock

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/davrell/hearth/entry"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
)

// Integration hosts cloud lock entries: setup authenticates against the
// cloud API, builds the device index and starts the event stream, mapping
// failures into the entry manager's taxonomy.
type Integration struct {
	apiURL    string
	streamURL string

	client *http.Client
	logger logwrap.Logger
}

func NewIntegration(apiURL string, streamURL string) *Integration {
	return &Integration{
		apiURL:    apiURL,
		streamURL: streamURL,
		logger:    logwrap.New(discard.Discard()),
	}
}

func (i *Integration) WithLogger(l logwrap.Logger) *Integration {
	i.logger = l
	return i
}

func (i *Integration) WithHTTPClient(c *http.Client) *Integration {
	i.client = c
	return i
}

func (i *Integration) Name() string {
	return "cloudlock"
}

// Setup brings one entry up: session, gateway setup, authentication, token
// refresh, inventory, event stream. Authentication problems surface as
// entry.AuthFailedError, timeouts and connection problems as
// entry.NotReadyError, anything else propagates unchanged.
func (i *Integration) Setup(ctx context.Context, e *entry.Entry) (entry.Runtime, error) {
	config := NewConfig(e.Settings())

	session := NewSession(i.apiURL, config.InstallId(), i.client)
	gw := NewGateway(session, config, i.logger)

	gw.Setup(ctx)

	if err := gw.Authenticate(ctx); err != nil {
		return nil, translateError(err)
	}

	if err := gw.RefreshAccessTokenIfNeeded(ctx); err != nil {
		return nil, translateError(err)
	}

	data := NewData(session, i.logger)

	if err := data.Populate(ctx); err != nil {
		return nil, translateError(err)
	}

	// The stream outlives the setup call, it is stopped by the unload hook.
	stream := NewStream(context.WithoutCancel(ctx), i.streamURL, session, data, i.logger)
	stream.Start()
	data.AttachStream(stream)

	e.OnUnload(func(context.Context) error {
		stream.Stop()
		return nil
	})

	return data, nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRequiresValidation):
		return entry.AuthFailedError{Inner: err}
	case errors.Is(err, ErrConnection), errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return entry.NotReadyError{Inner: err}
	}

	var apiErr APIError
	if errors.As(err, &apiErr) {
		return entry.NotReadyError{Inner: err}
	}

	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ entry.Integration = (*Integration)(nil)
