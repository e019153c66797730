package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/audit"
	"github.com/rs/zerolog/log"
)

// SignupRequest represents the signup request payload
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the user payload returned by signup and login
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// SessionResponse carries the user plus a fresh refresh token
type SessionResponse struct {
	User         UserResponse `json:"user"`
	RefreshToken string       `json:"refresh_token"`
}

// HandleSignup processes user registration
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)

		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Name is required")
			return
		}
		if !isValidEmail(req.Email) {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}
		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		refreshToken, refreshHash, err := GenerateRefreshToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate refresh token")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		userID := uuid.New()
		query := `
			INSERT INTO users (id, name, email, password_hash, refresh_token_hash)
			VALUES ($1, $2, $3, $4, $5)
		`

		_, err = pool.Exec(r.Context(), query, userID, req.Name, req.Email, passwordHash, refreshHash)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}

			log.Error().Err(err).Str("email", req.Email).Msg("Failed to insert user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(r.Context(), userID, req.Email); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to log audit event")
			// Continue - don't fail the signup
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", userID.String()).
			Str("email", req.Email).
			Msg("User signed up successfully")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SessionResponse{
			User:         UserResponse{ID: userID, Name: req.Name, Email: req.Email},
			RefreshToken: refreshToken,
		})
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin processes user authentication
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		var userID uuid.UUID
		var name string
		var passwordHash string
		query := `SELECT id, name, password_hash FROM users WHERE email = $1`

		err := pool.QueryRow(r.Context(), query, req.Email).Scan(&userID, &name, &passwordHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				log.Debug().Str("email", req.Email).Msg("Login failed: user not found")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Str("email", req.Email).Msg("Failed to query user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if err := VerifyPassword(passwordHash, req.Password); err != nil {
			log.Debug().Str("email", req.Email).Msg("Login failed: wrong password")
			if err := auditor.LogLoginFailed(r.Context(), req.Email, r.RemoteAddr); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		// Rotate the refresh token on every login.
		refreshToken, refreshHash, err := GenerateRefreshToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate refresh token")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		_, err = pool.Exec(r.Context(), `
			UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1
		`, userID, refreshHash)
		if err != nil {
			log.Error().Err(err).Msg("Failed to store refresh token")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", userID.String()).
			Str("email", req.Email).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{
			User:         UserResponse{ID: userID, Name: name, Email: req.Email},
			RefreshToken: refreshToken,
		})
	}
}

// HandleLogout clears the session cookie and invalidates the refresh token
func HandleLogout(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w)

		userID := GetUserID(r.Context())
		if userID != uuid.Nil {
			if _, err := pool.Exec(r.Context(), `
				UPDATE users SET refresh_token_hash = NULL, updated_at = NOW() WHERE id = $1
			`, userID); err != nil {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to clear refresh token")
			}
			log.Info().Str("user_id", userID.String()).Msg("User logged out")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"logged_out": true})
	}
}

// RefreshRequest carries an opaque refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh exchanges a valid refresh token for a new session cookie and a
// rotated refresh token
func HandleRefresh(pool *pgxpool.Pool, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if !ValidateTokenFormat(req.RefreshToken, RefreshTokenPrefix) {
			apperrors.WriteUnauthorized(w, r, "Invalid refresh token")
			return
		}

		var userID uuid.UUID
		var name, email string
		err := pool.QueryRow(r.Context(), `
			SELECT id, name, email FROM users WHERE refresh_token_hash = $1
		`, HashToken(req.RefreshToken)).Scan(&userID, &name, &email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				apperrors.WriteUnauthorized(w, r, "Invalid refresh token")
				return
			}
			log.Error().Err(err).Msg("Failed to look up refresh token")
			apperrors.WriteInternalError(w, r, "Failed to refresh session")
			return
		}

		refreshToken, refreshHash, err := GenerateRefreshToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate refresh token")
			apperrors.WriteInternalError(w, r, "Failed to refresh session")
			return
		}

		if _, err := pool.Exec(r.Context(), `
			UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1
		`, userID, refreshHash); err != nil {
			log.Error().Err(err).Msg("Failed to rotate refresh token")
			apperrors.WriteInternalError(w, r, "Failed to refresh session")
			return
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to refresh session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{
			User:         UserResponse{ID: userID, Name: name, Email: email},
			RefreshToken: refreshToken,
		})
	}
}

// ForgotPasswordRequest carries the email to issue a restoration code for
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword issues a one-time restoration code. The response is the
// same whether or not the email exists, so the endpoint cannot be used to probe
// for accounts. Delivery of the code is an external concern; in dev mode the
// code is included in the response to ease local testing.
func HandleForgotPassword(pool *pgxpool.Pool, restoreTTL time.Duration, isDev bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ForgotPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if !isValidEmail(req.Email) {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}

		code, codeHash, err := GenerateRestoreCode()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate restoration code")
			apperrors.WriteInternalError(w, r, "Failed to process request")
			return
		}

		expiresAt := time.Now().UTC().Add(restoreTTL)
		tag, err := pool.Exec(r.Context(), `
			UPDATE users
			SET restore_code_hash = $2, restore_code_expires_at = $3, updated_at = NOW()
			WHERE email = $1
		`, req.Email, codeHash, expiresAt)
		if err != nil {
			log.Error().Err(err).Msg("Failed to store restoration code")
			apperrors.WriteInternalError(w, r, "Failed to process request")
			return
		}

		if tag.RowsAffected() > 0 {
			log.Info().Str("email", req.Email).Msg("Restoration code issued")
		} else {
			log.Debug().Str("email", req.Email).Msg("Restoration requested for unknown email")
		}

		data := map[string]any{"sent": true}
		if isDev && tag.RowsAffected() > 0 {
			data["code"] = code
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, data)
	}
}

// ResetPasswordRequest carries a restoration code and the new password
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// HandleResetPassword consumes a restoration code and sets a new password.
// The code is single-use: it is cleared in the same UPDATE that sets the hash,
// and the refresh token is invalidated so stolen sessions die with the reset.
func HandleResetPassword(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}
		if !ValidateTokenFormat(req.Code, RestoreCodePrefix) {
			apperrors.WriteUnauthorized(w, r, "Invalid or expired restoration code")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to reset password")
			return
		}

		var userID uuid.UUID
		err = pool.QueryRow(r.Context(), `
			UPDATE users
			SET password_hash = $3,
			    restore_code_hash = NULL,
			    restore_code_expires_at = NULL,
			    refresh_token_hash = NULL,
			    updated_at = NOW()
			WHERE email = $1
			  AND restore_code_hash = $2
			  AND restore_code_expires_at > NOW()
			RETURNING id
		`, req.Email, HashToken(req.Code), passwordHash).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				apperrors.WriteUnauthorized(w, r, "Invalid or expired restoration code")
				return
			}
			log.Error().Err(err).Msg("Failed to reset password")
			apperrors.WriteInternalError(w, r, "Failed to reset password")
			return
		}

		if err := auditor.LogPasswordReset(r.Context(), userID); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to log audit event")
		}

		log.Info().Str("email", req.Email).Msg("Password reset completed")
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"reset": true})
	}
}

// isValidEmail validates email format using net/mail (RFC 5322 simplified)
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}
