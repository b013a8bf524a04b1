package auth

import (
	"context"
	"net/http"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// decodeAndCall decodes Req, runs call and writes the result as a 200
// envelope with detail.
func decodeAndCall[Req, Resp any](svc auth.Service, logg *logger.Logger, detail string, call func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errServiceUnavailable)
			return
		}
		var req Req
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out, err := call(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessDetail(w, http.StatusOK, detail, out)
	}
}

// Token exchanges email and password for an access/refresh pair.
func Token(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeAndCall(svc, logg, "ok", func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
		return svc.Login(ctx, req)
	})
}

// Refresh consumes the refresh token and returns a new pair.
func Refresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeAndCall(svc, logg, "ok", func(ctx context.Context, req auth.RefreshRequest) (any, error) {
		return svc.Refresh(ctx, req)
	})
}

func Logout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeAndCall(svc, logg, "logged out", func(ctx context.Context, req auth.RefreshRequest) (any, error) {
		return nil, svc.Logout(ctx, req)
	})
}
