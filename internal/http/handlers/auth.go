package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/approval"
	"github.com/sjc1990app/server/internal/auth"
	"github.com/sjc1990app/server/internal/middleware"
	"go.uber.org/zap"
)

// AuthHandler handles registration, verification and account review endpoints
type AuthHandler struct {
	verification *auth.VerificationService
	approvals    *approval.Service
	log          *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(verification *auth.VerificationService, approvals *approval.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		verification: verification,
		approvals:    approvals,
		log:          log,
	}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
}

type registerResponse struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

// verifyRequest is the request body for POST /auth/verify
type verifyRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type pendingApproval struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	RequestedAt string `json:"requestedAt"`
}

type pendingApprovalsResponse struct {
	Approvals []pendingApproval `json:"approvals"`
	Count     int               `json:"count"`
}

type approveResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// rejectRequest is the optional request body for POST /auth/reject/{userId}
type rejectRequest struct {
	Reason string `json:"reason"`
}

type rejectResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	reg, err := h.verification.Register(r.Context(), req.PhoneNumber, req.Name)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	respondJSON(w, h.log, http.StatusOK, registerResponse{
		Message:   "Verification code sent",
		ExpiresIn: reg.ExpiresIn,
	})
}

// HandleVerify handles POST /auth/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	verified, err := h.verification.Verify(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	respondJSON(w, h.log, http.StatusCreated, verifyResponse{
		UserID:    verified.AccountID.String(),
		Status:    string(verified.Status),
		Token:     verified.Token,
		ExpiresAt: verified.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandlePendingApprovals handles GET /auth/pending-approvals (admin)
func (h *AuthHandler) HandlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.approvals.ListPending(r.Context())
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	resp := pendingApprovalsResponse{Approvals: make([]pendingApproval, 0, len(pending))}
	for _, p := range pending {
		resp.Approvals = append(resp.Approvals, pendingApproval{
			UserID:      p.AccountID.String(),
			PhoneNumber: p.PhoneNumber,
			Name:        p.Name,
			Status:      string(p.Outcome),
			RequestedAt: p.RequestedAt.UTC().Format(time.RFC3339),
		})
	}
	resp.Count = len(resp.Approvals)
	respondJSON(w, h.log, http.StatusOK, resp)
}

// HandleApprove handles POST /auth/approve/{userId} (admin)
func (h *AuthHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	accountID, adminID, err := reviewTarget(r)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	result, err := h.approvals.Approve(r.Context(), accountID, adminID)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	respondJSON(w, h.log, http.StatusOK, approveResponse{
		Message: "User approved successfully",
		UserID:  result.AccountID.String(),
	})
}

// HandleReject handles POST /auth/reject/{userId} (admin). The body is optional.
func (h *AuthHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	accountID, adminID, err := reviewTarget(r)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errMissingBody) {
		respondWithError(w, r, h.log, err)
		return
	}

	result, err := h.approvals.Reject(r.Context(), accountID, adminID, req.Reason)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	respondJSON(w, h.log, http.StatusOK, rejectResponse{
		Message: "User rejected",
		UserID:  result.AccountID.String(),
		Reason:  result.Reason,
	})
}

// reviewTarget returns the {userId} under review and the reviewing admin
func reviewTarget(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, apperr.Unauthorized("Missing authorization header")
	}
	accountID, err := uuid.Parse(chi.URLParam(r, middleware.UserIDParam))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.BadRequest("Invalid user ID")
	}
	return accountID, claims.AccountID, nil
}
