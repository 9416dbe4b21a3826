// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"context"
	"net/http"

	"github.com/ManuGH/infinitune/internal/auth"
)

// BearerValidator authenticates a control-plane Authorization: Bearer
// token against an external identity issuer, returning the caller's
// user id. The concrete issuer client lives outside this module; only
// the boundary is defined here.
type BearerValidator interface {
	ValidateBearer(ctx context.Context, token string) (userID string, err error)
}

type principalKey struct{}

// principalFromContext returns the authenticated identity attached by
// requireAuth, if any.
func principalFromContext(ctx context.Context) (*auth.Principal, bool) {
	v, ok := ctx.Value(principalKey{}).(*auth.Principal)
	return v, ok && v != nil
}

// requireAuth enforces the control-plane's two accepted credentials: a
// bearer token validated against the configured issuer, or an
// x-device-token validated against the storage device table. The
// WebSocket surface does not use this middleware — it is unauthenticated
// at this layer, per the protocol's room-membership-based model.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if deviceToken := r.Header.Get("x-device-token"); deviceToken != "" {
			dev, err := s.store.GetDeviceByToken(ctx, deviceToken)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "INVALID_DEVICE_TOKEN", "device token not recognized")
				return
			}
			ctx = context.WithValue(ctx, principalKey{}, auth.NewPrincipal(dev.ID, auth.SourceDeviceToken))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if token := auth.ExtractToken(r, false); token != "" {
			if s.cfg.BearerValidator == nil {
				writeError(w, http.StatusUnauthorized, "ISSUER_NOT_CONFIGURED", "bearer authentication is not available")
				return
			}
			userID, err := s.cfg.BearerValidator.ValidateBearer(ctx, token)
			if err != nil || userID == "" {
				writeError(w, http.StatusUnauthorized, "INVALID_BEARER_TOKEN", "bearer token rejected by issuer")
				return
			}
			ctx = context.WithValue(ctx, principalKey{}, auth.NewPrincipal(userID, auth.SourceBearer))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "bearer token or x-device-token required")
	})
}
