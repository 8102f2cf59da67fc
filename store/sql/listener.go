package sqlstore

import (
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/lib/pq"

	"github.com/goliatone/go-federation/core"
)

// Listener turns postgres NOTIFY events on the deliveries channel into
// queue-changed signals. It holds its own connection, separate from
// the query pool; pq reconnects it automatically and a reconnect is
// surfaced as a signal so workers re-check the queue.
type Listener struct {
	pq     *pq.Listener
	logger core.Logger
	out    chan struct{}
	done   chan struct{}
}

func NewListener(dsn string, logger core.Logger) (*Listener, error) {
	_, logger = glog.Resolve("sqlstore", nil, logger)
	l := &Listener{
		logger: logger,
		out:    make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	l.pq = pq.NewListener(dsn, 10*time.Second, time.Minute, l.onEvent)
	if err := l.pq.Listen(NotifyChannel); err != nil {
		l.pq.Close()
		return nil, fmt.Errorf("sqlstore: listen on %s: %w", NotifyChannel, err)
	}
	go l.forward()
	return l, nil
}

func (l *Listener) Notifications() <-chan struct{} {
	return l.out
}

func (l *Listener) Close() error {
	close(l.done)
	return l.pq.Close()
}

func (l *Listener) forward() {
	for {
		select {
		case <-l.done:
			return
		case notification, ok := <-l.pq.Notify:
			if !ok {
				return
			}
			// A nil notification means the connection was re-established
			// and events may have been missed; signal either way.
			_ = notification
			select {
			case l.out <- struct{}{}:
			default:
			}
		}
	}
}

func (l *Listener) onEvent(event pq.ListenerEventType, err error) {
	if err != nil {
		l.logger.Warn("delivery listener event", "event", int(event), "error", err)
	}
}

var _ core.ChangeListener = (*Listener)(nil)
