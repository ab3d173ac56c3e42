package cloudlock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/stretchr/testify/assert"
)

func newPopulatedData(t *testing.T, locks []lockDetails, handler http.HandlerFunc) (*Data, func()) {
	mux := http.NewServeMux()
	mux.HandleFunc("/locks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(locks)
	})

	if handler != nil {
		mux.HandleFunc("/", handler)
	}

	srv := httptest.NewServer(mux)

	s := NewSession(srv.URL, "install-1", srv.Client())
	d := NewData(s, logwrap.New(discard.Discard()))

	if err := d.Populate(context.Background()); err != nil {
		srv.Close()
		t.Fatalf("failed to populate data: %s", err)
	}

	return d, srv.Close
}

func TestData_Populate(t *testing.T) {
	t.Run("builds the device index from the inventory and announces devices", func(t *testing.T) {
		d, done := newPopulatedData(t, []lockDetails{
			{Id: "lock-1", Name: "Front Door", Manufacturer: "Example Corp", Model: "L1", Serial: "0001", Status: lockStatusLocked, DoorState: "closed"},
		}, nil)
		defer done()

		assert.True(t, d.Device("lock-1"))
		assert.False(t, d.Device("lock-2"))

		assert.Len(t, d.Devices(), 2)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		event, err := d.ReadEvent(ctx)
		assert.NoError(t, err)

		added, ok := event.(da.DeviceAdded)
		assert.True(t, ok)
		assert.Equal(t, LockIdentifier("lock-1"), added.Device.Identifier())
	})
}

func TestLock_Capabilities(t *testing.T) {
	t.Run("locks expose lock control, door sense and product information", func(t *testing.T) {
		d, done := newPopulatedData(t, []lockDetails{
			{Id: "lock-1", Name: "Front Door", Manufacturer: "Example Corp", Model: "L1", Serial: "0001", Status: lockStatusLocked, DoorState: "open"},
		}, nil)
		defer done()

		l := d.locks["lock-1"]

		assert.Contains(t, l.Capabilities(), capabilities.OnOffFlag)
		assert.Contains(t, l.Capabilities(), capabilities.AlarmSensorFlag)
		assert.Contains(t, l.Capabilities(), capabilities.ProductInformationFlag)
		assert.Nil(t, l.Capability(capabilities.EnumerateDeviceFlag))

		control, ok := l.Capability(capabilities.OnOffFlag).(capabilities.OnOff)
		assert.True(t, ok)

		locked, err := control.Status(context.Background())
		assert.NoError(t, err)
		assert.True(t, locked)

		sense, ok := l.Capability(capabilities.AlarmSensorFlag).(capabilities.AlarmSensor)
		assert.True(t, ok)

		states, err := sense.Status(context.Background())
		assert.NoError(t, err)
		assert.True(t, states[capabilities.SecurityContact])

		product, ok := l.Capability(capabilities.ProductInformationFlag).(capabilities.ProductInformation)
		assert.True(t, ok)

		pi, err := product.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "Front Door", pi.Name)
		assert.Equal(t, "Example Corp", pi.Manufacturer)
		assert.Equal(t, "0001", pi.Serial)
	})

	t.Run("lock control issues cloud commands and tracks resulting state", func(t *testing.T) {
		commanded := ""

		d, done := newPopulatedData(t, []lockDetails{
			{Id: "lock-1", Status: lockStatusLocked},
		}, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/locks/lock-1/status", r.URL.Path)

			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			commanded = body["status"]
		})
		defer done()

		l := d.locks["lock-1"]
		control := l.Capability(capabilities.OnOffFlag).(capabilities.OnOff)

		assert.NoError(t, control.Off(context.Background()))
		assert.Equal(t, lockStatusUnlocked, commanded)

		locked, err := control.Status(context.Background())
		assert.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestData_update(t *testing.T) {
	t.Run("a door state change raises a contact alarm update", func(t *testing.T) {
		d, done := newPopulatedData(t, []lockDetails{
			{Id: "lock-1", Status: lockStatusLocked, DoorState: "closed"},
		}, nil)
		defer done()

		// Drop the DeviceAdded event from population.
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = d.ReadEvent(ctx)
		cancel()

		d.update("lock-1", "", doorStateOpen)

		ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		event, err := d.ReadEvent(ctx)
		assert.NoError(t, err)

		update, ok := event.(capabilities.AlarmSensorUpdate)
		assert.True(t, ok)
		assert.True(t, update.States[capabilities.SecurityContact])
	})

	t.Run("an unchanged state does not raise an event", func(t *testing.T) {
		d, done := newPopulatedData(t, []lockDetails{
			{Id: "lock-1", Status: lockStatusLocked, DoorState: "closed"},
		}, nil)
		defer done()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = d.ReadEvent(ctx)
		cancel()

		d.update("lock-1", lockStatusLocked, "closed")

		ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := d.ReadEvent(ctx)
		assert.Error(t, err)
	})

	t.Run("updates for unknown locks are ignored", func(t *testing.T) {
		d, done := newPopulatedData(t, nil, nil)
		defer done()

		d.update("lock-9", lockStatusLocked, "")
	})
}
