package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestFlushOnStop(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track("run-1", map[string]int{"n": 1})
	bc.Track("run-1", map[string]int{"n": 2})
	assert.Equal(t, 2, bc.BufferLen())

	cancel()
	bc.Close()
	assert.Equal(t, 2, pub.total())
	assert.Equal(t, 0, bc.BufferLen())
}

func TestFlushWhenBatchIsFull(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	for i := 0; i < 4; i++ {
		bc.Track("k", i)
	}
	require.Eventually(t, func() bool { return pub.total() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	bc.Close()
}

func TestFailedFlushRequeues(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	bc := NewBatchCollector(pub, 10, time.Hour)

	bc.Track("k", 1)
	bc.Flush(context.Background())
	assert.Equal(t, 1, bc.BufferLen())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 1, pub.total())
}
