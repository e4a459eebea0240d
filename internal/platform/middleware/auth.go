package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"gatelog/internal/token"
	id "gatelog/pkg/domain"
	"gatelog/pkg/requestcontext"
)

// JWTValidator defines the interface for validating access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*token.Claims, error)
}

// RequireAuth validates the bearer token and binds the caller's facility
// scope, and operator identity when present, into the request context.
// Every downstream query is partitioned by that facility.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			raw, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				if logger != nil {
					logger.WarnContext(ctx, "unauthorized access - missing token",
						"request_id", requestID,
					)
				}
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(raw)
			if err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", requestID,
					)
				}
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			facilityID, err := id.ParseFacilityID(claims.FacilityID)
			if err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "unauthorized access - token without facility scope",
						"request_id", requestID,
					)
				}
				writeUnauthorized(w, "Token carries no facility scope")
				return
			}
			ctx = requestcontext.WithFacilityID(ctx, facilityID)

			if claims.OperatorID != "" {
				operatorID, err := id.ParseOperatorID(claims.OperatorID)
				if err != nil {
					writeUnauthorized(w, "Malformed operator identity")
					return
				}
				ctx = requestcontext.WithOperatorID(ctx, operatorID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
