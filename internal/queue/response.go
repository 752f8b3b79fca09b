// Package queue implements the two bounded queues between the MAC engine
// callbacks and the orchestration goroutine: the response queue, correlating
// the single outstanding request with its confirmation, and the event queue,
// carrying unsolicited network events.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// response queue errors
var (
	ErrRequestOutstanding = errors.New("a request is already outstanding")
	ErrResponseOverlap    = errors.New("confirmation pushed while another confirmation is pending")
	ErrResponseTimeout    = errors.New("response queue push timeout")
	ErrKindMismatch       = errors.New("confirmation does not match the outstanding request")
)

// ResponseQueue correlates the single outstanding synchronous request with
// its confirmation.
type ResponseQueue struct {
	ch          chan Confirmation
	pushTimeout time.Duration

	mu          sync.Mutex
	outstanding RequestKind
	// set when the waiter gave up before the confirmation was received
	abandoned bool
}

// NewResponseQueue creates a new ResponseQueue. The push timeout bounds the
// time Push blocks when the queue is full.
func NewResponseQueue(size int, pushTimeout time.Duration) *ResponseQueue {
	if size < 1 {
		size = 1
	}

	return &ResponseQueue{
		ch:          make(chan Confirmation, size),
		pushTimeout: pushTimeout,
	}
}

// Expect registers the kind of the request that is about to be issued. It
// must be called before the request is handed to the engine, as the
// confirmation might be pushed before the request call returns.
// Confirmations left over from an abandoned request are discarded.
func (q *ResponseQueue) Expect(kind RequestKind) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding != KindUnknown && !q.abandoned {
		return errors.Wrapf(ErrRequestOutstanding, "outstanding: %s, new: %s", q.outstanding, kind)
	}

drain:
	for {
		select {
		case c := <-q.ch:
			responseDiscardCounter().Inc()
			log.WithFields(log.Fields{
				"kind":   c.Kind(),
				"status": c.EventInfoStatus(),
			}).Warning("queue: discarding stale confirmation")
		default:
			break drain
		}
	}

	q.outstanding = kind
	q.abandoned = false
	return nil
}

// Cancel clears the outstanding request. It must be called when the engine
// did not accept the request, as no confirmation will follow.
func (q *ResponseQueue) Cancel() {
	q.mu.Lock()
	q.outstanding = KindUnknown
	q.abandoned = false
	q.mu.Unlock()
}

func (q *ResponseQueue) abandon() {
	q.mu.Lock()
	if q.outstanding != KindUnknown {
		q.abandoned = true
		log.WithField("kind", q.outstanding).Warning("queue: outstanding request abandoned")
	}
	q.mu.Unlock()
}

// Outstanding returns the kind of the outstanding request.
func (q *ResponseQueue) Outstanding() RequestKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Push pushes the given confirmation. It blocks up to the push timeout when
// the queue is full, the confirmation is never dropped silently.
// ErrResponseOverlap is returned (after the confirmation has been queued)
// when another confirmation was still waiting to be consumed.
func (q *ResponseQueue) Push(c Confirmation) error {
	var overlap bool
	if len(q.ch) > 0 {
		overlap = true
		responseOverlapCounter().Inc()
		log.WithFields(log.Fields{
			"kind":   c.Kind(),
			"status": c.EventInfoStatus(),
		}).Error("queue: confirmation pushed while another confirmation is pending")
	}

	if kind := q.Outstanding(); kind == KindUnknown {
		log.WithFields(log.Fields{
			"kind":   c.Kind(),
			"status": c.EventInfoStatus(),
		}).Warning("queue: confirmation pushed without outstanding request")
	}

	timer := time.NewTimer(q.pushTimeout)
	defer timer.Stop()

	select {
	case q.ch <- c:
	case <-timer.C:
		responsePushTimeoutCounter().Inc()
		log.WithFields(log.Fields{
			"kind":    c.Kind(),
			"status":  c.EventInfoStatus(),
			"timeout": q.pushTimeout,
		}).Error("queue: push confirmation timeout")
		return ErrResponseTimeout
	}

	responseCounter(c.Kind()).Inc()

	if overlap {
		return ErrResponseOverlap
	}
	return nil
}

// Wait blocks until the confirmation of the outstanding request has been
// received or ctx is done. ErrKindMismatch is returned when the received
// confirmation does not match the given kind. When ctx is done the request
// is abandoned: the next Expect is accepted and discards its late
// confirmation.
func (q *ResponseQueue) Wait(ctx context.Context, kind RequestKind) (Confirmation, error) {
	select {
	case <-ctx.Done():
		q.abandon()
		return nil, ctx.Err()
	case c := <-q.ch:
		q.Cancel()

		if c.Kind() != kind {
			return c, errors.Wrapf(ErrKindMismatch, "expected: %s, got: %s", kind, c.Kind())
		}
		return c, nil
	}
}

// Len returns the number of confirmations waiting to be consumed.
func (q *ResponseQueue) Len() int {
	return len(q.ch)
}
