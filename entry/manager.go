package entry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
)

const setupRetryInitialInterval = 5 * time.Second
const setupRetryMaxInterval = 5 * time.Minute

// EntryLoaded is emitted when an entry's setup succeeds and its runtime is
// attached.
type EntryLoaded struct {
	Entry *Entry
}

// EntryAuthFailed is emitted when setup fails permanently and the user must
// re-authenticate. No retry is scheduled.
type EntryAuthFailed struct {
	Entry *Entry
	Error error
}

// EntrySetupRetry is emitted when setup fails transiently, another attempt
// will fire after Interval.
type EntrySetupRetry struct {
	Entry    *Entry
	Error    error
	Interval time.Duration
}

// EntryUnloaded is emitted once an entry's cleanup has completed.
type EntryUnloaded struct {
	Entry *Entry
}

// Manager hosts entry lifecycles: setup with the three way error taxonomy,
// scheduled setup retries, unload and device removal arbitration.
type Manager struct {
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger    logwrap.Logger
	callbacks callbacks.AdderCaller
	events    chan any
}

func NewManager(ctx context.Context) *Manager {
	ctx, cancel := context.WithCancel(ctx)

	return &Manager{
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logwrap.New(discard.Discard()),
		callbacks: callbacks.Create(),
		events:    make(chan any, 100),
	}
}

func (m *Manager) WithLogger(l logwrap.Logger) *Manager {
	m.logger = l
	return m
}

// Listen registers a callback invoked synchronously for manager events, in
// addition to the ReadEvent stream. The callback signature selects the event
// type, for example func(context.Context, EntryLoaded) error.
func (m *Manager) Listen(f any) {
	m.callbacks.Add(f)
}

func (m *Manager) Stop() {
	m.ctxCancel()
}

func (m *Manager) ReadEvent(ctx context.Context) (any, error) {
	select {
	case e := <-m.events:
		return e, nil
	case <-ctx.Done():
		return nil, errors.New("context expired while reading event")
	}
}

func (m *Manager) sendEvent(e any) {
	if err := m.callbacks.Call(m.ctx, e); err != nil {
		m.logger.Warn(m.ctx, "Event listener returned error.", logwrap.Err(err))
	}

	m.events <- e
}

// Setup runs the integration's setup for an entry and applies the error
// taxonomy: AuthFailedError halts with an EntryAuthFailed event,
// NotReadyError schedules a retry with backoff, anything else propagates
// unchanged. The integration's error is always returned to the caller.
func (m *Manager) Setup(ctx context.Context, i Integration, e *Entry) error {
	e.m.Lock()
	if e.state == StateLoaded {
		e.m.Unlock()
		return fmt.Errorf("entry %s is already loaded", e.id)
	}
	e.integration = i
	e.m.Unlock()

	m.logger.Info(ctx, "Setting up entry.", logwrap.Datum("Entry", e.id), logwrap.Datum("Integration", i.Name()))

	rt, err := i.Setup(ctx, e)

	if err != nil {
		var authFailed AuthFailedError
		var notReady NotReadyError

		switch {
		case errors.As(err, &authFailed):
			m.logger.Error(ctx, "Entry setup failed, authentication required.", logwrap.Datum("Entry", e.id), logwrap.Err(err))

			e.m.Lock()
			e.state = StateAuthFailed
			e.m.Unlock()

			m.sendEvent(EntryAuthFailed{Entry: e, Error: err})
		case errors.As(err, &notReady):
			interval := m.scheduleRetry(e)
			m.logger.Warn(ctx, "Entry setup failed, not ready, retry scheduled.", logwrap.Datum("Entry", e.id), logwrap.Datum("intervalMs", interval.Milliseconds()), logwrap.Err(err))

			m.sendEvent(EntrySetupRetry{Entry: e, Error: err, Interval: interval})
		default:
			m.logger.Error(ctx, "Entry setup failed.", logwrap.Datum("Entry", e.id), logwrap.Err(err))

			e.m.Lock()
			e.state = StateFailed
			e.m.Unlock()
		}

		return err
	}

	e.m.Lock()
	e.state = StateLoaded
	e.runtime = rt
	e.retryAttempt = 0
	e.m.Unlock()

	m.logger.Info(ctx, "Entry loaded.", logwrap.Datum("Entry", e.id))
	m.sendEvent(EntryLoaded{Entry: e})

	return nil
}

func (m *Manager) scheduleRetry(e *Entry) time.Duration {
	e.m.Lock()
	defer e.m.Unlock()

	e.state = StateSetupRetry

	interval := setupRetryInitialInterval << e.retryAttempt
	if interval > setupRetryMaxInterval || interval <= 0 {
		interval = setupRetryMaxInterval
	}

	e.retryAttempt++

	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}

	e.retryTimer = time.AfterFunc(interval, func() {
		if m.ctx.Err() != nil {
			return
		}

		if e.State() != StateSetupRetry {
			return
		}

		if err := m.Setup(m.ctx, e.integration, e); err != nil {
			m.logger.Warn(m.ctx, "Entry setup retry failed.", logwrap.Datum("Entry", e.id), logwrap.Err(err))
		}
	})

	return interval
}

// Unload tears an entry down: pending retries are cancelled, unload
// callbacks run once in reverse registration order, the runtime is stopped
// and detached.
func (m *Manager) Unload(ctx context.Context, e *Entry) error {
	e.m.Lock()

	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}

	unload := e.unload
	e.unload = nil

	rt := e.runtime
	e.runtime = nil
	e.state = StateNotLoaded

	e.m.Unlock()

	var unloadErr error

	for i := len(unload) - 1; i >= 0; i-- {
		if err := unload[i](ctx); err != nil {
			m.logger.Warn(ctx, "Entry unload callback returned error.", logwrap.Datum("Entry", e.id), logwrap.Err(err))
			unloadErr = errors.Join(unloadErr, err)
		}
	}

	if rt != nil {
		if err := rt.Stop(ctx); err != nil {
			m.logger.Warn(ctx, "Entry runtime stop returned error.", logwrap.Datum("Entry", e.id), logwrap.Err(err))
			unloadErr = errors.Join(unloadErr, err)
		}
	}

	m.logger.Info(ctx, "Entry unloaded.", logwrap.Datum("Entry", e.id))
	m.sendEvent(EntryUnloaded{Entry: e})

	return unloadErr
}

// RemoveDevice arbitrates device removal for an entry: removal is permitted
// only once the runtime's device index no longer knows the identifier.
func (m *Manager) RemoveDevice(e *Entry, identifier string) error {
	rt := e.Runtime()

	if rt != nil && rt.Device(identifier) {
		return fmt.Errorf("device %s is still present in entry %s", identifier, e.Id())
	}

	return nil
}
