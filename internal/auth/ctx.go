package auth

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const adminKey ctxKey = "cookiepool.admin"

// WithAdmin stores the authenticated admin subject in context.
func WithAdmin(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, adminKey, id)
}

// AdminFromCtx fetches the admin subject from context.
func AdminFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(adminKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
