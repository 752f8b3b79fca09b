package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-classa-device/internal/test"
)

type ChannelPoolTestSuite struct {
	suite.Suite

	url string
}

func (ts *ChannelPoolTestSuite) SetupSuite() {
	conf := test.GetConfig()
	ts.url = conf.Integration.AMQP.URL
	redialBackoff = 0
}

func (ts *ChannelPoolTestSuite) TearDownSuite() {
	redialBackoff = time.Second
}

func (ts *ChannelPoolTestSuite) TestNew() {
	assert := require.New(ts.T())

	p, err := newPool(10, ts.url)
	assert.NoError(err)
	defer p.close()
	assert.Len(p.idle, 10)
	assert.Equal(1, p.generation())
}

func (ts *ChannelPoolTestSuite) TestAcquireRelease() {
	assert := require.New(ts.T())

	p, err := newPool(10, ts.url)
	assert.NoError(err)

	chans := make([]*channel, 11)
	for i := range chans {
		chans[i], err = p.acquire()
		assert.NoError(err)
	}
	assert.Len(p.idle, 0)

	for _, c := range chans {
		assert.NoError(c.release())
	}

	ts.T().Run("pool size is capped", func(t *testing.T) {
		assert := require.New(t)
		assert.Len(p.idle, 10)
	})

	assert.NoError(p.close())
	assert.Len(p.idle, 0)
}

func (ts *ChannelPoolTestSuite) TestReleaseBroken() {
	assert := require.New(ts.T())

	p, err := newPool(10, ts.url)
	assert.NoError(err)
	defer p.close()

	c, err := p.acquire()
	assert.NoError(err)
	c.markBroken()
	assert.NoError(c.release())

	assert.Len(p.idle, 9)
}

func (ts *ChannelPoolTestSuite) TestRedial() {
	assert := require.New(ts.T())

	p, err := newPool(2, ts.url)
	assert.NoError(err)
	defer p.close()

	borrowed, err := p.acquire()
	assert.NoError(err)

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	assert.NoError(conn.Close())

	c, err := p.acquire()
	assert.NoError(err)
	assert.Equal(2, p.generation())
	assert.Equal(2, c.gen)
	assert.NoError(c.Qos(1, 0, false))

	ts.T().Run("channel of the previous connection is not pooled", func(t *testing.T) {
		assert := require.New(t)
		assert.NoError(borrowed.release())
		assert.Len(p.idle, 0)

		assert.NoError(c.release())
		assert.Len(p.idle, 1)
	})
}

func (ts *ChannelPoolTestSuite) TestAcquireClosed() {
	assert := require.New(ts.T())

	p, err := newPool(1, ts.url)
	assert.NoError(err)
	assert.NoError(p.close())
	assert.NoError(p.close())

	_, err = p.acquire()
	assert.Equal(errClosed, err)
}

func TestChannelPool(t *testing.T) {
	if !test.RabbitMQEnabled() {
		t.Skip("TEST_RABBITMQ_URL is not set")
	}

	suite.Run(t, new(ChannelPoolTestSuite))
}
