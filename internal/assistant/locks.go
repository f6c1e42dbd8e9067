package assistant

import "sync"

// conversationLocks serialises handlers per conversation. Entries are
// reference counted and dropped when no handler holds or waits for them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*convLock)}
}

// lock blocks until the conversation is free and returns its unlock function.
func (c *conversationLocks) lock(conversationID string) func() {
	c.mu.Lock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &convLock{}
		c.locks[conversationID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}

func (c *conversationLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
