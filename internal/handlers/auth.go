package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/auth"
	"github.com/ukydev/carlink/internal/db"
	"github.com/ukydev/carlink/internal/middleware"
	"github.com/ukydev/carlink/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	log            log.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, logger log.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		log:            logger,
	}
}

// Signup registers a user and starts a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}
	for _, check := range []func() error{
		func() error { return h.authService.ValidateName(req.Name) },
		func() error { return h.authService.ValidateEmail(req.Email) },
		func() error { return h.authService.ValidatePassword(req.Password) },
	} {
		if err := check(); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if _, err := h.userCollection.FindUserByEmail(r.Context(), req.Email); err == nil {
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		writeError(w, r, h.log, err)
		return
	}

	passwordHash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeMessage(w, http.StatusBadRequest, "User already exists")
			return
		}
		writeError(w, r, h.log, err)
		return
	}

	token, err := h.startSession(w, user)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.log.WithField("user_id", user.ID.Hex()).Info("User registered")
	writeJSON(w, http.StatusCreated, envelope{
		"message": "User created successfully",
		"user":    user,
		"token":   token,
	})
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userCollection.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			writeError(w, r, h.log, err)
			return
		}
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !h.authService.CheckPassword(req.Password, user.PasswordHash) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.startSession(w, user)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	} else {
		now := time.Now().UTC()
		user.LastLogin = &now
	}

	writeJSON(w, http.StatusOK, envelope{
		"message": "Logged in successfully",
		"user":    user,
		"token":   token,
	})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// CheckAuth returns the authenticated user.
func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

// startSession issues a token and sets it as the session cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, user *models.User) (string, error) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.authService.TokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	return token, nil
}
