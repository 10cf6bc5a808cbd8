package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tho-bre/event-flow/internal/app"
	"github.com/tho-bre/event-flow/internal/domain"
)

// Gate is the access gate as seen by the HTTP layer.
type Gate interface {
	SessionResolver
	Register(ctx context.Context, email, secret, name string) error
	Authenticate(ctx context.Context, email, secret string) (app.SessionResult, error)
	SignOut(ctx context.Context, token string) error
	Subscribe(match func(domain.IdentityEvent) bool) (<-chan domain.IdentityEvent, func())
}

type associationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toAssociationResponse(a domain.Association) associationResponse {
	return associationResponse{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	AssociationName string `json:"association_name"`
}

// HandleRegister creates an inactive association. Success is reported as
// 403 pending_activation since the caller cannot sign in yet.
func HandleRegister(gate Gate, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		err := gate.Register(r.Context(), req.Email, req.Password, req.AssociationName)
		if err == nil {
			err = domain.ErrPendingActivation
		}
		writeServiceError(w, r, logger, err)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string              `json:"token"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Association associationResponse `json:"association"`
}

func HandleLogin(gate Gate, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "email and password are required")
			return
		}
		res, err := gate.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{
			Token:       res.Token,
			ExpiresAt:   res.ExpiresAt,
			Association: toAssociationResponse(res.Association),
		})
	}
}

func HandleLogout(gate Gate, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gate.SignOut(r.Context(), bearerToken(r)); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toAssociationResponse(associationFrom(r.Context())))
	}
}

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}
