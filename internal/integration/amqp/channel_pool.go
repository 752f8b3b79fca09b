package amqp

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var errClosed = errors.New("pool is closed")

// redialBackoff bounds how often a lost connection is re-dialed.
var redialBackoff = time.Second

// pool owns the AMQP connection and keeps a set of idle channels on it.
// When the connection is lost, the next acquire re-dials the server and
// the channels opened on the old connection are discarded.
type pool struct {
	url  string
	size int

	mu       sync.Mutex
	conn     *amqp.Connection
	gen      int
	idle     []*channel
	closed   bool
	lastDial time.Time
}

// channel is an AMQP channel borrowed from the pool. It must be released
// after use.
type channel struct {
	*amqp.Channel

	p      *pool
	gen    int
	broken bool
}

func newPool(size int, url string) (*pool, error) {
	p := &pool{
		url:  url,
		size: size,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connect()
	if err != nil {
		return nil, err
	}

	for i := 0; i < size; i++ {
		ch, err := conn.Channel()
		if err != nil {
			p.shutdown()
			return nil, errors.Wrap(err, "create channel error")
		}
		p.idle = append(p.idle, &channel{Channel: ch, p: p, gen: p.gen})
	}

	return p, nil
}

// connect returns the current connection, dialing a new one when there is
// none. p.mu must be held.
func (p *pool) connect() (*amqp.Connection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	if wait := redialBackoff - time.Since(p.lastDial); !p.lastDial.IsZero() && wait > 0 {
		return nil, errors.Errorf("redial backoff, retry in %s", wait)
	}
	p.lastDial = time.Now()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp server error")
	}

	for _, c := range p.idle {
		c.Channel.Close()
	}
	p.idle = nil
	p.conn = conn
	p.gen++

	if p.gen > 1 {
		amqpReconnectCounter().Inc()
		log.WithField("generation", p.gen).Info("integration/amqp: reconnected to AMQP server")
	}

	go p.watch(conn, p.gen)

	return conn, nil
}

// watch drops the connection of the given generation once it is closed.
func (p *pool) watch(conn *amqp.Connection, gen int) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.gen != gen {
		return
	}

	if ok && err != nil {
		log.WithError(err).Error("integration/amqp: connection lost")
	}
	p.conn = nil
}

func (p *pool) generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// acquire returns an idle channel or opens a new one.
func (p *pool) acquire() (*channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errClosed
	}

	conn, err := p.connect()
	if err != nil {
		return nil, err
	}

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return c, nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "create channel error")
	}
	return &channel{Channel: ch, p: p, gen: p.gen}, nil
}

// release returns the channel to the pool. Broken channels, channels of a
// previous connection and channels exceeding the pool size are closed.
func (c *channel) release() error {
	p := c.p

	p.mu.Lock()
	keep := !p.closed && !c.broken && c.gen == p.gen && len(p.idle) < p.size
	if keep {
		p.idle = append(p.idle, c)
	}
	p.mu.Unlock()

	if keep {
		return nil
	}
	if c.gen != p.generation() {
		// the connection is gone, and so is the channel
		return nil
	}
	return c.Channel.Close()
}

// markBroken flags the channel for closing on release.
func (c *channel) markBroken() {
	c.broken = true
}

// close closes all idle channels and the connection. Borrowed channels are
// closed on release.
func (p *pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	return p.shutdown()
}

// shutdown must be called with p.mu held.
func (p *pool) shutdown() error {
	p.closed = true

	for _, c := range p.idle {
		c.Channel.Close()
	}
	p.idle = nil

	conn := p.conn
	p.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
