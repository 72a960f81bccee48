package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockManager_SameKeySameLock(t *testing.T) {
	m := NewLockManager()
	a := m.GetLock("sqlite")
	b := m.GetLock("sqlite")
	assert.Same(t, a, b)
}

func TestLockManager_DifferentKeys(t *testing.T) {
	m := NewLockManager()
	a := m.GetLock("sqlite")
	b := m.GetLock("mongo")
	assert.NotSame(t, a, b)
}

func TestLockManager_ConcurrentAccess(t *testing.T) {
	m := NewLockManager()

	var wg sync.WaitGroup
	locks := make([]interface{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = m.GetLock("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < 50; i++ {
		assert.Same(t, locks[0], locks[i])
	}
}

func TestLockManager_LockSerializes(t *testing.T) {
	m := NewLockManager()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := m.GetLock("db")
			lock.Lock()
			counter++
			lock.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
