package bridge

import (
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 64

// QueuedSink delivers events to a slow sink from its own goroutine.
// HandleEvent never blocks; events that do not fit are dropped and counted.
type QueuedSink struct {
	sink    EventSink
	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

// NewQueuedSink starts delivering to sink. size <= 0 uses 64.
func NewQueuedSink(sink EventSink, size int) *QueuedSink {
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &QueuedSink{
		sink:  sink,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// HandleEvent queues e for delivery.
func (q *QueuedSink) HandleEvent(e Event) {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return
	default:
	}

	select {
	case q.queue <- e:
	default:
		q.dropped.Add(1)
	}
}

// Close delivers what is already queued and stops the goroutine.
func (q *QueuedSink) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

// Dropped returns how many events were discarded.
func (q *QueuedSink) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *QueuedSink) run() {
	defer q.wg.Done()
	for {
		select {
		case e := <-q.queue:
			q.sink.HandleEvent(e)
		case <-q.done:
			for {
				select {
				case e := <-q.queue:
					q.sink.HandleEvent(e)
				default:
					return
				}
			}
		}
	}
}
