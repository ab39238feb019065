package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"papertrade/auth"
	"papertrade/db"
	"papertrade/model"
)

type sessionResponse struct {
	Token   string        `json:"token"`
	Message string        `json:"message"`
	User    model.Profile `json:"user"`
}

// respondWithAuthError mirrors the error into a message field, which the
// sign-in screens display directly.
func respondWithAuthError(w http.ResponseWriter, code int, errMsg, message string) {
	respondWithJSON(w, code, map[string]string{"error": errMsg, "message": message})
}

func (a *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	a.createAccount(w, r, request.Name, request.Email, request.Password)
}

// signupHandler accepts fullName as well as name.
func (a *API) signupHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		FullName string `json:"fullName"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	name := request.FullName
	if name == "" {
		name = request.Name
	}
	a.createAccount(w, r, name, request.Email, request.Password)
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request, name, email, password string) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		respondWithAuthError(w, http.StatusBadRequest, "All fields are required", "All fields are required")
		return
	}
	if len(password) < a.authCfg.MinPasswordLength {
		msg := fmt.Sprintf("Password must be at least %d characters", a.authCfg.MinPasswordLength)
		respondWithAuthError(w, http.StatusBadRequest, msg, msg)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		a.internalError(w, r, err, "Registration failed")
		return
	}

	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Balance:      a.authCfg.StartingBalance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			respondWithAuthError(w, http.StatusBadRequest, "Email already registered", "Email already registered")
			return
		}
		a.internalError(w, r, err, "Registration failed")
		return
	}

	token, err := a.issuer.Issue(user.ID)
	if err != nil {
		a.internalError(w, r, err, "Registration failed")
		return
	}

	a.logger.Info("Account created", zap.String("user", user.ID))
	respondWithJSON(w, http.StatusCreated, sessionResponse{
		Token:   token,
		Message: "Account created successfully",
		User:    user.Profile(),
	})
}

func (a *API) loginHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}

	email := normalizeEmail(request.Email)
	if email == "" || request.Password == "" {
		respondWithAuthError(w, http.StatusBadRequest, "Email and password are required", "Email and password are required")
		return
	}

	user, err := a.store.UserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, r, err, "Login failed")
		return
	}
	if err != nil || !auth.CheckPassword(request.Password, user.PasswordHash) {
		respondWithAuthError(w, http.StatusUnauthorized, "Invalid credentials", "Invalid email or password")
		return
	}

	token, err := a.issuer.Issue(user.ID)
	if err != nil {
		a.internalError(w, r, err, "Login failed")
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{
		Token:   token,
		Message: "Login successful",
		User:    user.Profile(),
	})
}

func (a *API) meHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, userFrom(r).Profile())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
