package echo

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// userIDContextKey is the echo context key carrying the authenticated user id.
const userIDContextKey = "auth_user_id"

// SessionAuth resolves the caller's identity from the bearer session token.
// Every endpoint requires an authenticated caller; requests without a valid
// session are rejected before reaching a handler. The resolved user id is the
// only per-request auth state and travels in the request scope, never in a
// process-wide variable.
func SessionAuth(sessions domain.SessionRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return writeError(c, herrors.ErrUnauthenticated)
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return writeError(c, herrors.ErrUnauthenticated)
			}

			session, err := sessions.GetByToken(c.Request().Context(), parts[1])
			if err != nil {
				return writeError(c, err)
			}
			c.Set(userIDContextKey, session.UserID)
			return next(c)
		}
	}
}

// userID returns the authenticated user id set by SessionAuth.
func userID(c echo.Context) string {
	id, _ := c.Get(userIDContextKey).(string)
	return id
}
