// ABOUTME: HTTP handlers for bootstrap registration and login
// ABOUTME: Maps auth service outcomes onto status codes and records each attempt in the audit log

package gateway

import (
	"errors"
	"mime"
	"net/http"

	"github.com/2389/dockgate/internal/auth"
	"github.com/2389/dockgate/internal/store"
)

// credentialsRequest is the JSON body of /auth/register and JSON logins.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the body of a successful login.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// maxAuditActorLen truncates attacker-controlled usernames before they are stored.
const maxAuditActorLen = 64

func auditActor(username string) string {
	if len(username) > maxAuditActorLen {
		return username[:maxAuditActorLen]
	}
	return username
}

// handleRegister creates the first admin user. Once a user exists every call
// is refused before the body is read.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !g.auth.RegistrationOpen() {
		sendJSONError(w, http.StatusForbidden, "Registration not allowed: a user already exists.")
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := g.auth.Register(r.Context(), req.Username, req.Password)
	var verr *auth.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrRegistrationClosed):
		sendJSONError(w, http.StatusForbidden, "Registration not allowed: a user already exists.")
		return
	case errors.As(err, &verr):
		sendJSONError(w, http.StatusBadRequest, verr.Error())
		return
	default:
		g.logger.Error("registration failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "could not persist user")
		return
	}

	g.recordAudit(r, &store.AuditEntry{
		Actor:      req.Username,
		Action:     store.AuditRegister,
		TargetType: "user",
		TargetID:   req.Username,
	})
	sendJSON(w, http.StatusOK, map[string]string{"msg": "Admin user created"})
}

// readCredentials accepts form-encoded, multipart or JSON login bodies.
func readCredentials(w http.ResponseWriter, r *http.Request) (username, pw string, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return "", "", err
		}
		return req.Username, req.Password, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return "", "", errors.New("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return "", "", errors.New("invalid form body")
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}

// handleLogin exchanges credentials for a bearer token. Unknown users and
// wrong passwords get the same response.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	username, pw, err := readCredentials(w, r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.auth.Login(r.Context(), username, pw)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrMissingCredentials):
		sendJSONError(w, http.StatusBadRequest, "Username and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		g.logger.Warn("login failed", "username", auditActor(username), "remote_addr", r.RemoteAddr)
		g.recordAudit(r, &store.AuditEntry{
			Actor:      auditActor(username),
			Action:     store.AuditLoginFailed,
			TargetType: "user",
			TargetID:   auditActor(username),
		})
		w.Header().Set("WWW-Authenticate", "Bearer")
		sendJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	default:
		g.logger.Error("login failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.recordAudit(r, &store.AuditEntry{
		Actor:      result.Username,
		Action:     store.AuditLoginSuccess,
		TargetType: "user",
		TargetID:   result.Username,
	})
	sendJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
	})
}
