package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"github.com/sbilibin2017/gw-user-signup/internal/services"
)

//go:generate mockgen -source=signup.go -destination=mock_signup.go -package=handlers

// Response messages.
const (
	MsgSignupSuccess   = "User registered successfully! Please check your email for confirmation."
	MsgUserExists      = "User with this email or username already exists"
	MsgInvalidBody     = "Invalid request body"
	msgUnexpectedError = "An error occurred: %v"
)

// Signuper defines the interface that the signup service must implement.
type Signuper interface {
	Signup(ctx context.Context, req models.SignupRequest) (string, error)
}

// NewSignupHandler returns an HTTP handler for user signup.
// @Summary Register a new user
// @Description Validates the payload, rejects existing username or email, stores the user with a hashed password and sends a welcome email.
// @Tags auth
// @Accept json
// @Produce json
// @Param signupRequest body models.SignupRequest true "User signup request"
// @Success 201 {object} models.SignupResponse "User successfully registered"
// @Failure 400 {object} models.ErrorResponse "Validation failed / user already exists"
// @Failure 500 {object} models.ErrorResponse "Store unreachable / unexpected error"
// @Router /signup [post]
func NewSignupHandler(svc Signuper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log.Errorw("panic during signup", "panic", rec)
				writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
					Error: fmt.Sprintf(msgUnexpectedError, rec),
				})
			}
		}()

		// An empty body decodes as an empty request and fails field validation.
		var req models.SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Log.Warnw("invalid signup payload", "err", err)
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: MsgInvalidBody})
			return
		}

		userID, err := svc.Signup(r.Context(), req)
		if err != nil {
			status, msg := errorResponse(err)
			writeJSON(w, status, models.ErrorResponse{Error: msg})
			return
		}

		writeJSON(w, http.StatusCreated, models.SignupResponse{
			Message: MsgSignupSuccess,
			UserID:  userID,
		})
	}
}

// errorResponse maps a signup error to its status code and client message.
func errorResponse(err error) (int, string) {
	var (
		validationErr *services.ValidationError
		storeErr      *services.StoreConnectError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, services.ErrUserAlreadyExists):
		return http.StatusBadRequest, MsgUserExists
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError, storeErr.Error()
	default:
		logger.Log.Errorw("internal server error", "err", err)
		return http.StatusInternalServerError, fmt.Sprintf(msgUnexpectedError, err)
	}
}
