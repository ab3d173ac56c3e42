package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	t.Run("default rules can be loaded and pass compilation", func(t *testing.T) {
		e := New()

		err := e.LoadFS(Embedded)
		assert.NoError(t, err)

		err = e.CompileRules()
		assert.NoError(t, err)
	})

	t.Run("default rules map an IAS zone endpoint to the IAS zone sensor", func(t *testing.T) {
		e := New()

		assert.NoError(t, e.LoadFS(Embedded))
		assert.NoError(t, e.CompileRules())

		o, err := e.Execute(Input{
			Self: 1,
			Endpoint: map[int]InputEndpoint{
				1: {ID: 1, InClusters: []uint16{0x0500}},
			},
		})
		assert.NoError(t, err)
		assert.Contains(t, o.Capabilities, "ZCLIASZoneSensor")
	})

	t.Run("default rules map an occupancy sensing endpoint to the occupancy sensor", func(t *testing.T) {
		e := New()

		assert.NoError(t, e.LoadFS(Embedded))
		assert.NoError(t, e.CompileRules())

		o, err := e.Execute(Input{
			Self: 1,
			Endpoint: map[int]InputEndpoint{
				1: {ID: 1, InClusters: []uint16{0x0406}},
			},
		})
		assert.NoError(t, err)
		assert.Contains(t, o.Capabilities, "ZCLOccupancySensor")
	})
}
