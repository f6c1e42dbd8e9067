package assistant

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationLocks_Serialise(t *testing.T) {
	t.Parallel()
	locks := newConversationLocks()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("conv")
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestConversationLocks_Independent(t *testing.T) {
	t.Parallel()
	locks := newConversationLocks()

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	assert.Equal(t, 2, locks.size())

	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
