package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type entryKey struct{}

// NewContext returns a copy of ctx carrying the request-scoped fields of
// entry. Every WithTracing call made with the returned context includes them.
func NewContext(ctx context.Context, entry *logrus.Entry) context.Context {
	if existing, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok {
		entry = existing.WithFields(entry.Data)
	}
	return context.WithValue(ctx, entryKey{}, entry)
}

// Fields returns the request-scoped fields stored in ctx, or nil.
func Fields(ctx context.Context) logrus.Fields {
	if entry, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok {
		return entry.Data
	}
	return nil
}
