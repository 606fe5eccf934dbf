package metrics

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// requireJWT wraps next with an HS256 bearer-token check. An empty secret
// disables the check entirely, since the status websocket carries nothing
// more sensitive than beat counters and is often run unauthenticated
// behind a private network.
func requireJWT(secret string, logger *zap.Logger, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	key := []byte(secret)

	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			logger.Debug("status websocket rejected invalid token", zap.Error(err))
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
