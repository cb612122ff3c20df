package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/enrolld/server/internal/middleware"
	"github.com/enrolld/server/internal/registration"
	"github.com/google/uuid"
)

// RegistrationHandler handles the registration OTP endpoints
type RegistrationHandler struct {
	svc             *registration.Service
	startIPLimiter  *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(svc *registration.Service) *RegistrationHandler {
	// IP rate limiters: 10 per 10min for start/resend, 20 per 10min for
	// verify. The per-token cooldown and attempt limits are DB-based.
	return &RegistrationHandler{
		svc:             svc,
		startIPLimiter:  middleware.NewRateLimiter(10*time.Minute, 10),
		verifyIPLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// startRequest is the request body for POST /registration/start
type startRequest struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DeviceID    string `json:"device_id"`
}

// startResponse is the JSON response for a started registration
type startResponse struct {
	CustomerID string `json:"customer_id"`
	ExpiresAt  string `json:"expires_at"`
	DevOTP     string `json:"dev_otp,omitempty"`
}

// HandleStart handles POST /registration/start
func (h *RegistrationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "validation_error")
		return
	}

	if !h.allow(h.startIPLimiter, w, r) {
		return
	}

	deviceID, ok := parseDeviceID(w, req.DeviceID)
	if !ok {
		return
	}

	result, err := h.svc.Start(r.Context(), registration.StartRequest{
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		DeviceID:    deviceID,
		IP:          getClientIP(r),
	})
	if err != nil {
		respondRegistrationError(w, req.PhoneNumber, "registration start failed", err)
		return
	}

	respondJSON(w, http.StatusCreated, startResponse{
		CustomerID: result.CustomerID.String(),
		ExpiresAt:  result.ExpiresAt.Format(time.RFC3339),
		DevOTP:     result.PlainCode,
	})
}

// resendRequest is the request body for POST /registration/resend
type resendRequest struct {
	CustomerID  string `json:"customer_id"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	DeviceID    string `json:"device_id"`
}

// resendResponse is the JSON response for a resend
type resendResponse struct {
	IsNew     bool   `json:"is_new"`
	ExpiresAt string `json:"expires_at"`
	DevOTP    string `json:"dev_otp,omitempty"`
}

// HandleResend handles POST /registration/resend
func (h *RegistrationHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "validation_error")
		return
	}

	if !h.allow(h.startIPLimiter, w, r) {
		return
	}

	customerID, ok := parseCustomerID(w, req.CustomerID)
	if !ok {
		return
	}
	deviceID, ok := parseDeviceID(w, req.DeviceID)
	if !ok {
		return
	}

	result, err := h.svc.Resend(r.Context(), registration.ResendRequest{
		CustomerID:  customerID,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Email:       strings.TrimSpace(req.Email),
		DeviceID:    deviceID,
		IP:          getClientIP(r),
	})
	if err != nil {
		respondRegistrationError(w, req.PhoneNumber, "resend failed", err)
		return
	}

	respondJSON(w, http.StatusOK, resendResponse{
		IsNew:     result.IsNew,
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
		DevOTP:    result.PlainCode,
	})
}

// verifyRequest is the request body for POST /registration/verify
type verifyRequest struct {
	CustomerID  string `json:"customer_id"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	DeviceID    string `json:"device_id"`
}

// verifyResponse is the JSON response for a successful verification
type verifyResponse struct {
	CustomerID  string `json:"customer_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// HandleVerify handles POST /registration/verify
func (h *RegistrationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "validation_error")
		return
	}

	if !h.allow(h.verifyIPLimiter, w, r) {
		return
	}

	customerID, ok := parseCustomerID(w, req.CustomerID)
	if !ok {
		return
	}
	deviceID, ok := parseDeviceID(w, req.DeviceID)
	if !ok {
		return
	}

	result, err := h.svc.Verify(r.Context(), registration.VerifyRequest{
		CustomerID:  customerID,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Email:       strings.TrimSpace(req.Email),
		OTP:         strings.TrimSpace(req.OTP),
		DeviceID:    deviceID,
		IP:          getClientIP(r),
	})
	if err != nil {
		respondRegistrationError(w, req.PhoneNumber, "verification failed", err)
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		CustomerID:  result.CustomerID.String(),
		AccessToken: result.AccessToken,
		ExpiresIn:   int64(result.ExpiresIn.Seconds()),
		TokenType:   "bearer",
	})
}

// customerResponse is the customer object in API responses
type customerResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// HandleMe handles GET /me (protected). Returns the authenticated customer.
func (h *RegistrationHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	customer, ok := middleware.GetCustomer(r.Context())
	if !ok || customer == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	respondJSON(w, http.StatusOK, customerResponse{
		ID:          customer.ID.String(),
		PhoneNumber: customer.PhoneNumber,
		Email:       customer.Email,
		FirstName:   customer.FirstName,
		LastName:    customer.LastName,
	})
}

func (h *RegistrationHandler) allow(limiter *middleware.RateLimiter, w http.ResponseWriter, r *http.Request) bool {
	if !limiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
		return false
	}
	return true
}

func parseCustomerID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "customer_id must be a valid UUID", "validation_error")
		return uuid.Nil, false
	}
	return id, true
}

func parseDeviceID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "device_id must be a valid UUID", "validation_error")
		return uuid.Nil, false
	}
	return id, true
}

// errorResponse is the failure payload: machine-readable code plus human
// message; cooldown failures additionally carry retry_after.
type errorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// respondRegistrationError maps a core error to its HTTP shape.
func respondRegistrationError(w http.ResponseWriter, phone, context string, err error) {
	logMaskedPhone(phone, context, err)

	if e, ok := registration.AsError(err); ok {
		resp := errorResponse{Error: e.Message, Code: e.Kind.Code()}
		if e.Kind == registration.KindCooldownActive {
			resp.RetryAfter = e.RetryAfter.Format(time.RFC3339)
		}
		respondJSON(w, e.Kind.HTTPStatus(), resp)
		return
	}

	respondJSON(w, http.StatusInternalServerError, errorResponse{
		Error: "internal error",
		Code:  "internal_error",
	})
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	respondJSON(w, statusCode, errorResponse{Error: message, Code: code})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	return r.RemoteAddr
}

// logMaskedPhone logs a message with masked phone number
func logMaskedPhone(phone, message string, err error) {
	log.Printf("Phone %s: %s: %v", maskPhone(phone), message, err)
}

// maskPhone masks a phone number for logging (e.g., +49******89)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	prefix := phone[:2]
	suffix := phone[len(phone)-2:]
	return prefix + strings.Repeat("*", len(phone)-4) + suffix
}
