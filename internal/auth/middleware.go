package auth

import (
	"net/http"
	"strings"

	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Middleware struct {
	jwtService   *JWTService
	workerTokens *WorkerTokenIssuer
}

func NewMiddleware(jwtService *JWTService, workerTokens *WorkerTokenIssuer) *Middleware {
	return &Middleware{
		jwtService:   jwtService,
		workerTokens: workerTokens,
	}
}

// RequireAdmin admits only session tokens carrying the admin role.
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := m.verifySession(c)
			if !ok {
				return respondError(c, http.StatusUnauthorized, claimsErrorMessage(c))
			}
			if claims.Role != RoleAdmin {
				return respondError(c, http.StatusForbidden, msgAdminRequired)
			}

			c.Set(ContextKeyUserID, claims.UserID)
			c.Set(ContextKeyActorType, ActorAdmin)

			return next(c)
		}
	}
}

// RequireUser admits any valid session token. Entitlement is checked later
// by the download gate, not here.
func (m *Middleware) RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := m.verifySession(c)
			if !ok {
				return respondError(c, http.StatusUnauthorized, claimsErrorMessage(c))
			}

			c.Set(ContextKeyUserID, claims.UserID)
			c.Set(ContextKeyActorType, ActorUser)

			return next(c)
		}
	}
}

func (m *Middleware) RequireWorker() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c)
			if token == "" {
				return respondError(c, http.StatusUnauthorized, msgMissingAuthorization)
			}

			claims, err := m.workerTokens.Verify(token)
			if err != nil {
				return respondError(c, http.StatusUnauthorized, msgInvalidOrExpiredToken)
			}

			c.Set(ContextKeyActorType, ActorWorker)
			c.Set(ContextKeyScope, claims.Scope)

			return next(c)
		}
	}
}

func (m *Middleware) verifySession(c echo.Context) (*JWTClaims, bool) {
	token := extractBearerToken(c)
	if token == "" {
		return nil, false
	}

	claims, err := m.jwtService.Verify(token)
	if err != nil {
		return nil, false
	}

	return claims, true
}

func claimsErrorMessage(c echo.Context) string {
	if extractBearerToken(c) == "" {
		return msgMissingAuthorization
	}
	return msgInvalidOrExpiredToken
}

func extractBearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(headerAuthorization)
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != authHeaderParts || strings.ToLower(parts[0]) != bearerScheme {
		return ""
	}

	return parts[1]
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyError: message})
}

func GetUserID(c echo.Context) (uuid.UUID, error) {
	userID := c.Get(ContextKeyUserID)
	if userID == nil {
		return uuid.Nil, apperrors.Unauthorized(msgUserNotAuthenticated)
	}

	id, ok := userID.(uuid.UUID)
	if !ok {
		return uuid.Nil, apperrors.InternalServer(msgInvalidUserIDCtx, nil)
	}

	return id, nil
}

func GetActorType(c echo.Context) string {
	actor, _ := c.Get(ContextKeyActorType).(string)
	return actor
}
