package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()

	var wg sync.WaitGroup
	counters := map[string]*int{"a": new(int), "b": new(int)}
	var guard sync.Mutex
	inside := map[string]int{}

	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := k.Lock(key)
				defer unlock()

				guard.Lock()
				inside[key]++
				assert.Equal(t, 1, inside[key])
				guard.Unlock()

				*counters[key]++

				guard.Lock()
				inside[key]--
				guard.Unlock()
			}(key)
		}
	}
	wg.Wait()

	assert.Equal(t, 50, *counters["a"])
	assert.Equal(t, 50, *counters["b"])
	assert.Equal(t, 0, k.Len())
}
