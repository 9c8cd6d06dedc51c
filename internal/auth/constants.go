package auth

const (
	ContextKeyUserID    = "user_id"
	ContextKeyActorType = "actor_type"
	ContextKeyScope     = "worker_scope"

	jsonKeyError = "error"

	headerAuthorization = "Authorization"

	bearerScheme    = "bearer"
	authHeaderParts = 2

	workerAudience = "worker"
	tokenIssuer    = "asset-pipeline"
)

const (
	msgMissingAuthorization    = "missing authorization token"
	msgInvalidOrExpiredToken   = "invalid or expired token"
	msgAdminRequired           = "admin role required"
	msgUserNotAuthenticated    = "user not authenticated"
	msgInvalidUserIDCtx        = "invalid user ID in context"
	msgUnexpectedSigningMethod = "unexpected signing method: %v"
	msgTokenParseFailed        = "failed to parse token: %w"
	msgInvalidTokenClaims      = "invalid token claims"
	msgEmptyScope              = "worker token scope cannot be empty"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ActorType values stored on the request context; the audit trail reads them.
const (
	ActorAdmin  = "admin"
	ActorUser   = "user"
	ActorWorker = "worker"
)
