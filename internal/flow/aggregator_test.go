package flow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyIsOk(t *testing.T) {
	assert.Equal(t, Ok, NewAggregator().State())
}

func TestWorstStateWins(t *testing.T) {
	a := NewAggregator()
	a.Add("b1")
	a.Add("b2")
	assert.Equal(t, Ok, a.Update("b1", Ok))
	assert.Equal(t, Error, a.Update("b2", Error))
	assert.Equal(t, Error, a.State())

	assert.Equal(t, Ok, a.Remove("b2"))
	assert.Equal(t, Ok, a.State())
}

func TestSeverityOrder(t *testing.T) {
	a := NewAggregator()
	a.Update("a", NotNegotiated)
	assert.Equal(t, NotNegotiated, a.State())
	a.Update("b", Flushing)
	assert.Equal(t, Flushing, a.State())
	a.Update("b", Ok)
	assert.Equal(t, NotNegotiated, a.State())
}

func TestAddKeepsExistingState(t *testing.T) {
	a := NewAggregator()
	a.Update("a", Flushing)
	assert.Equal(t, Flushing, a.Add("a"))
}

func TestReset(t *testing.T) {
	a := NewAggregator()
	a.Update("a", Error)
	a.Reset()
	assert.Equal(t, Ok, a.State())
	assert.Zero(t, a.Len())
}

func TestConcurrentUpdates(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("b%d", i)
			a.Update(name, Flushing)
			a.Update(name, Ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, Ok, a.State())
	assert.Equal(t, 32, a.Len())
}
