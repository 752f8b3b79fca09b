package logging

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus/ctxlogrus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID.
const ContextIDKey ContextKey = "ctx_id"

// WithContextID adds a new context ID to the context and sets it as a log
// field of the context logger.
func WithContextID(ctx context.Context) (context.Context, error) {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return ctx, errors.Wrap(err, "new uuid error")
	}

	ctx = context.WithValue(ctx, ContextIDKey, ctxID)
	ctx = ctxlogrus.ToContext(ctx, log.NewEntry(log.StandardLogger()))
	ctxlogrus.AddFields(ctx, log.Fields{
		"ctx_id": ctxID,
	})

	return ctx, nil
}

// ContextID returns the context ID, or uuid.Nil when not set.
func ContextID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// Logger returns the logger of the given context. When the context has not
// been created by WithContextID, the standard logger is returned.
func Logger(ctx context.Context) *log.Entry {
	if _, ok := ctx.Value(ContextIDKey).(uuid.UUID); !ok {
		return log.NewEntry(log.StandardLogger())
	}
	return ctxlogrus.Extract(ctx)
}
