package shared

import (
	"context"
	"fmt"
	"strconv"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// SessionUserID returns the signed-in user of the request session. ok is
// false for anonymous sessions; a malformed user value is an error.
func SessionUserID(ctx context.Context) (id int64, ok bool, err error) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false, fmt.Errorf("session user %q: %w", sess.User(), ErrInvalidSessionUser)
	}
	return id, true, nil
}
