package hearth

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_node_nextTransactionSequence(t *testing.T) {
	t.Run("sequences increment and cycle rather than exhausting", func(t *testing.T) {
		n := &node{m: &sync.RWMutex{}, sequence: makeTransactionSequence()}

		assert.Equal(t, uint8(0), n.nextTransactionSequence())
		assert.Equal(t, uint8(1), n.nextTransactionSequence())

		for i := 0; i < math.MaxUint8; i++ {
			n.nextTransactionSequence()
		}

		assert.Equal(t, uint8(2), n.nextTransactionSequence())
	})
}

func Test_node_nextDeviceSubIdentifier(t *testing.T) {
	t.Run("fills the lowest free sub identifier first", func(t *testing.T) {
		n := &node{m: &sync.RWMutex{}, device: map[uint8]*device{}}

		assert.Equal(t, uint8(0), n._nextDeviceSubIdentifier())

		n.device[0] = &device{}
		n.device[1] = &device{}

		assert.Equal(t, uint8(2), n._nextDeviceSubIdentifier())

		delete(n.device, 0)
		assert.Equal(t, uint8(0), n._nextDeviceSubIdentifier())
	})
}
