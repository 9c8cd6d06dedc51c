package audit

import (
	"context"
	"time"

	"asset-pipeline/internal/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ActorType represents the type of entity performing an action
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeUser   ActorType = "user"
	ActorTypeWorker ActorType = "worker"
	ActorTypeSystem ActorType = "system"
)

// ResourceType represents the type of resource being acted upon
type ResourceType string

const (
	ResourceTypeAsset  ResourceType = "asset"
	ResourceTypeJob    ResourceType = "processing_job"
	ResourceTypeUpload ResourceType = "upload"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionPublish    Action = "set_status"
	ActionRegenerate Action = "regenerate"
	ActionSign       Action = "sign"
	ActionDownload   Action = "download"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

const writeTimeout = 2 * time.Second

// Context keys read from echo; the auth middleware sets them.
const (
	contextKeyUserID    = "user_id"
	contextKeyActorType = "actor_type"
)

type Event struct {
	ID           uuid.UUID
	EventType    string
	ActorType    ActorType
	ActorID      *uuid.UUID
	ResourceType ResourceType
	ResourceID   *uuid.UUID
	Action       Action
	Status       Status
	IPAddress    string
	UserAgent    string
	RequestID    string
	Metadata     map[string]any
	ErrorMessage string
	CreatedAt    time.Time
}

type Store interface {
	Insert(ctx context.Context, event *Event) error
}

// Logger records admin actions without blocking the request.
type Logger struct {
	store Store
	log   *logger.Logger
}

func NewLogger(store Store, log *logger.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// LogFromContext builds an event from the request and writes it in the
// background with its own timeout. Failures are logged, never returned.
func (l *Logger) LogFromContext(c echo.Context, resourceType ResourceType, resourceID *uuid.UUID, action Action, status Status, metadata map[string]any) {
	event := &Event{
		ID:           uuid.New(),
		EventType:    string(action) + "_" + string(resourceType),
		ActorType:    ActorTypeSystem,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Status:       status,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
		RequestID:    c.Response().Header().Get(echo.HeaderXRequestID),
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}

	if actor, ok := c.Get(contextKeyActorType).(string); ok && actor != "" {
		event.ActorType = ActorType(actor)
	}
	if uid, ok := c.Get(contextKeyUserID).(uuid.UUID); ok {
		event.ActorID = &uid
	}
	if status == StatusFailure {
		if msg, ok := metadata["error"].(string); ok {
			event.ErrorMessage = msg
		}
	}

	l.write(event)
}

func (l *Logger) write(event *Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := l.store.Insert(ctx, event); err != nil {
			l.log.Warn("audit log failed", "event_type", event.EventType, "error", err)
		}
	}()
}
