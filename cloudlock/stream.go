package cloudlock

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/retry"
)

const streamConnectTimeout = 10 * time.Second
const streamConnectRetries = 5
const streamReconnectDelay = 5 * time.Second

// streamEvent is one push message from the cloud: a lock status change, a
// door state change, or both.
type streamEvent struct {
	DeviceId  string `json:"deviceId"`
	Status    string `json:"status"`
	DoorState string `json:"doorState"`
}

// Stream consumes the cloud's websocket push channel and applies state
// changes to the runtime data. A dropped connection is redialled until Stop
// is called.
type Stream struct {
	url     string
	session *Session
	data    *Data
	logger  logwrap.Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopped   chan struct{}
}

func NewStream(ctx context.Context, url string, session *Session, data *Data, logger logwrap.Logger) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	return &Stream{
		url:     url,
		session: session,
		data:    data,
		logger:  logger,

		ctx:       ctx,
		ctxCancel: cancel,
		stopped:   make(chan struct{}),
	}
}

func (s *Stream) Start() {
	go s.loop()
}

func (s *Stream) Stop() {
	s.ctxCancel()
	<-s.stopped
}

func (s *Stream) loop() {
	defer close(s.stopped)

	for s.ctx.Err() == nil {
		conn, err := s.dial()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}

			s.logger.Error(s.ctx, "Failed to connect to event stream, will retry.", logwrap.Err(err))

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(streamReconnectDelay):
				continue
			}
		}

		s.logger.Info(s.ctx, "Connected to event stream.")
		s.read(conn)
	}
}

func (s *Stream) dial() (*websocket.Conn, error) {
	var conn *websocket.Conn

	err := retry.Retry(s.ctx, streamConnectTimeout, streamConnectRetries, func(rctx context.Context) error {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+s.session.AccessToken())

		c, _, err := websocket.DefaultDialer.DialContext(rctx, s.url, header)
		if err != nil {
			return fmt.Errorf("websocket dial failed: %w", err)
		}

		conn = c
		return nil
	})

	return conn, err
}

func (s *Stream) read(conn *websocket.Conn) {
	defer conn.Close()

	// Unblock ReadJSON when the stream context is cancelled.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var event streamEvent

		if err := conn.ReadJSON(&event); err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn(s.ctx, "Event stream read failed, reconnecting.", logwrap.Err(err))
			}
			return
		}

		if event.DeviceId == "" {
			continue
		}

		s.data.update(event.DeviceId, event.Status, event.DoorState)
	}
}
