package semaphore_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notorious-go/eventgate/internal/semaphore"
)

func TestUnlimited(t *testing.T) {
	for _, limit := range []int{0, -1} {
		sem := semaphore.New(limit)
		assert.Nil(t, sem)
		for range 100 {
			assert.True(t, sem.TryAcquire())
		}
		sem.Release()
		assert.Equal(t, "Semaphore(unlimited)", sem.String())
	}
}

func TestTryAcquire(t *testing.T) {
	sem := semaphore.New(2)
	assert.Equal(t, "Semaphore(0/2)", sem.String())

	assert.True(t, sem.TryAcquire())
	assert.True(t, sem.TryAcquire())
	assert.False(t, sem.TryAcquire(), "acquired past the limit")
	assert.Equal(t, "Semaphore(2/2)", sem.String())

	sem.Release()
	assert.True(t, sem.TryAcquire())
	sem.Release()
	sem.Release()
	assert.Equal(t, "Semaphore(0/2)", sem.String())
}

func TestConcurrentHolders(t *testing.T) {
	const limit = 3
	sem := semaphore.New(limit)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		held     int
		acquired int
	)
	start := make(chan struct{})
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if !sem.TryAcquire() {
				return
			}
			mu.Lock()
			held++
			acquired++
			assert.LessOrEqual(t, held, limit)
			mu.Unlock()

			mu.Lock()
			held--
			mu.Unlock()
			sem.Release()
		}()
	}
	close(start)
	wg.Wait()
	assert.Positive(t, acquired)
	assert.Zero(t, len(sem))
}
