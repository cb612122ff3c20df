package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/enrolld/server/internal/auth"
	"github.com/enrolld/server/internal/model"
	"github.com/enrolld/server/internal/repo"
)

type contextKey string

const customerKey contextKey = "customer"

// AuthMiddleware validates bearer tokens, loads the customer, and attaches it
// to the request context. Inactive customers are rejected: no session is
// honored before activation.
func AuthMiddleware(jwtService *auth.JWTService, customers repo.CustomerRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			customer, err := customers.GetByID(r.Context(), claims.CustomerID)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "customer not found")
				return
			}
			if !customer.IsActive {
				respondWithError(w, http.StatusUnauthorized, "customer is not active")
				return
			}

			ctx := context.WithValue(r.Context(), customerKey, &customer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCustomer returns the customer attached to the request context (set by
// AuthMiddleware)
func GetCustomer(ctx context.Context) (*model.Customer, bool) {
	c, ok := ctx.Value(customerKey).(*model.Customer)
	return c, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
