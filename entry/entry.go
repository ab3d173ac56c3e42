package entry

import (
	"context"
	"sync"
	"time"

	"github.com/shimmeringbee/persistence"
)

type State int

const (
	StateNotLoaded State = iota
	StateLoaded
	StateSetupRetry
	StateAuthFailed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "NotLoaded"
	case StateLoaded:
		return "Loaded"
	case StateSetupRetry:
		return "SetupRetry"
	case StateAuthFailed:
		return "AuthFailed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Runtime is the per entry state an integration constructs during setup. It
// remains attached to the entry only while the entry is loaded.
type Runtime interface {
	Stop(ctx context.Context) error
	Device(identifier string) bool
}

// Integration constructs a Runtime for an entry. Errors wrapped in
// AuthFailedError or NotReadyError select the manager's failure handling,
// anything else is propagated to the caller unchanged.
type Integration interface {
	Name() string
	Setup(ctx context.Context, e *Entry) (Runtime, error)
}

// Entry is one configured instance of an integration.
type Entry struct {
	id       string
	settings persistence.Section

	m           sync.RWMutex
	state       State
	runtime     Runtime
	integration Integration
	unload      []func(context.Context) error

	retryTimer   *time.Timer
	retryAttempt int
}

func NewEntry(id string, settings persistence.Section) *Entry {
	return &Entry{
		id:       id,
		settings: settings,
	}
}

func (e *Entry) Id() string {
	return e.id
}

func (e *Entry) Settings() persistence.Section {
	return e.settings
}

func (e *Entry) State() State {
	e.m.RLock()
	defer e.m.RUnlock()

	return e.state
}

func (e *Entry) Runtime() Runtime {
	e.m.RLock()
	defer e.m.RUnlock()

	return e.runtime
}

// OnUnload registers a cleanup function, run in reverse registration order
// when the entry is unloaded.
func (e *Entry) OnUnload(f func(context.Context) error) {
	e.m.Lock()
	defer e.m.Unlock()

	e.unload = append(e.unload, f)
}
