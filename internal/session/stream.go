package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/groutine"
	"github.com/srg/pulsesync/internal/protocol"
)

// stream queues the notifications of one characteristic for its worker.
type stream struct {
	uuid   string
	ch     chan []byte
	mu     sync.RWMutex
	closed bool
}

// send queues data, blocking while the queue is full. It reports false once the
// stream is closed.
func (st *stream) send(data []byte) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.closed {
		return false
	}
	st.ch <- data
	return true
}

func (st *stream) close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	close(st.ch)
}

// connection is one dialed link and the streams feeding off it.
type connection struct {
	link    device.Link
	logger  *logrus.Logger
	streams []*stream
	workers groutine.Group

	done chan struct{}
	once sync.Once
}

func newConnection(link device.Link, logger *logrus.Logger) *connection {
	return &connection{link: link, logger: logger, done: make(chan struct{})}
}

// subscribe starts the worker for uuid and enables its notifications.
func (c *connection) subscribe(uuid string, handle handlerFunc, capacity int) error {
	st := &stream{uuid: uuid, ch: make(chan []byte, capacity)}
	c.streams = append(c.streams, st)

	c.workers.Go(context.Background(), "stream-"+protocol.CharacteristicName(uuid), func(ctx context.Context) {
		for data := range st.ch {
			handle(ctx, c, data)
		}
	})

	return c.link.Subscribe(uuid, func(data []byte) {
		if !st.send(data) {
			c.logger.WithField("characteristic", protocol.CharacteristicName(uuid)).
				Debug("Notification after teardown ignored")
		}
	})
}

// teardown unsubscribes, drains every stream, then closes the link. Safe to call
// more than once.
func (c *connection) teardown() {
	c.once.Do(func() {
		for _, st := range c.streams {
			if err := c.link.Unsubscribe(st.uuid); err != nil {
				c.logger.WithFields(logrus.Fields{
					"characteristic": protocol.CharacteristicName(st.uuid),
					"error":          err,
				}).Debug("Unsubscribe failed")
			}
		}
		for _, st := range c.streams {
			st.close()
		}
		c.workers.Wait()

		if err := c.link.Close(); err != nil {
			c.logger.WithField("error", err).Warn("Link closed with errors")
		}
		close(c.done)
	})
}
