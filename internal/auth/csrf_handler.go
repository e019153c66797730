package auth

import (
	"net/http"

	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// HandleCSRFToken handles GET /api/v1/auth/csrf
//
// Issues the double-submit cookie and returns the token so API clients can
// echo it in the X-CSRF-Token header on mutating requests.
func HandleCSRFToken(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to generate CSRF token")
			return
		}

		SetCSRFCookie(w, token, isProduction)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"csrf_token": token,
		})
	}
}
