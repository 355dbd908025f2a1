package accessory

import (
	"context"
	"sync/atomic"
)

type suppressionKey struct{}

type suppression struct {
	active atomic.Bool
}

// SuppressWrites marks updates made with the returned context as pushes of
// state that already came from the controller. Set handlers must
// acknowledge such updates without writing back.
//
// The mark is cleared when release is called, even for copies of the
// context still held elsewhere, so it cannot outlive the push it guards.
func SuppressWrites(parent context.Context) (ctx context.Context, release func()) {
	s := &suppression{}
	s.active.Store(true)
	return context.WithValue(parent, suppressionKey{}, s), func() { s.active.Store(false) }
}

// WritesSuppressed reports whether ctx carries an active suppression mark.
func WritesSuppressed(ctx context.Context) bool {
	s, ok := ctx.Value(suppressionKey{}).(*suppression)
	return ok && s.active.Load()
}
