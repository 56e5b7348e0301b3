package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_OrderAndClose(t *testing.T) {
	m := newMailbox[int]()

	for i := range 5 {
		require.True(t, m.Send(i))
	}
	assert.Equal(t, 5, m.Len())

	<-m.Ready()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, m.Drain())
	assert.Empty(t, m.Drain())

	m.Send(7)
	assert.Equal(t, []int{7}, m.Close())
	assert.False(t, m.Send(8))
	assert.Zero(t, m.Len())
}

func TestMailbox_ConcurrentSenders(t *testing.T) {
	m := newMailbox[int]()
	const senders, each = 8, 100

	var wg sync.WaitGroup
	for s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				m.Send(s*each + i)
			}
		}()
	}

	seen := make(map[int]bool)
	last := make(map[int]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collect := func() {
		for _, v := range m.Drain() {
			sender := v / each
			if prev, ok := last[sender]; ok {
				assert.Greater(t, v, prev, "per-sender order kept")
			}
			last[sender] = v
			seen[v] = true
		}
	}

	for {
		select {
		case <-m.Ready():
			collect()
		case <-done:
			collect()
			assert.Len(t, seen, senders*each)
			return
		}
	}
}
