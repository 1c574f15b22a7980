package notify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushDeduplicates(t *testing.T) {
	t.Parallel()
	q := NewQueue[Message]()

	assert.True(t, q.Push(Dirty("a.txt")))
	assert.False(t, q.Push(Dirty("a.txt")))
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, []Message{Dirty("a.txt")}, q.Drain())
}

func TestDrainPreservesOrder(t *testing.T) {
	t.Parallel()
	q := NewQueue[Message]()
	want := []Message{Dirty("c.mss"), Dirty("a.txt"), Dirty("project.yaml")}
	for _, m := range want {
		q.Push(m)
	}
	assert.Equal(t, want, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestDrainEmpty(t *testing.T) {
	t.Parallel()
	q := NewQueue[Message]()
	got := q.Drain()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPushAfterDrainIsDeliveredAgain(t *testing.T) {
	t.Parallel()
	q := NewQueue[Message]()
	q.Push(Dirty("a.txt"))
	assert.Len(t, q.Drain(), 1)

	assert.True(t, q.Push(Dirty("a.txt")), "drained messages no longer count as pending")
	assert.Equal(t, []Message{Dirty("a.txt")}, q.Drain())
	assert.Empty(t, q.Drain())
}

func TestConcurrentPushDrainNoLossNoDuplicates(t *testing.T) {
	t.Parallel()
	q := NewQueue[string]()
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(fmt.Sprintf("%d-%d", p, i))
			}
		}(p)
	}

	seen := make(map[string]int)
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			for _, m := range q.Drain() {
				seen[m]++
			}
			select {
			case <-stop:
				for _, m := range q.Drain() {
					seen[m]++
				}
				return
			default:
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-drained

	assert.Len(t, seen, producers*perProducer)
	for m, n := range seen {
		assert.Equal(t, 1, n, "message %s delivered %d times", m, n)
	}
}
