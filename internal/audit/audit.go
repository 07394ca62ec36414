package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"go.uber.org/zap"
)

// TableAuditLogs holds admin action history.
const TableAuditLogs = "audit_logs"

// Actions recorded by this service.
const (
	ActionUpdateOrgPercentage = "UPDATE_ORG_PERCENTAGE"
	ActionPayoutCreated       = "PAYOUT_CREATED"
	ActionPayoutReleased      = "PAYOUT_RELEASED"
	ActionSnapshotRun         = "BREAKEVEN_SNAPSHOT"
)

// Actor headers set by the admin front end.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

const (
	defaultUsername = "System Admin"
	defaultRole     = "admin"
	redacted        = "[REDACTED]"
)

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"authorization": {},
	"api_key":       {},
	"access_token":  {},
	"refresh_token": {},
}

// Actor is who performed an action.
type Actor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Entry is one audit log row.
type Entry struct {
	Action     string                 `json:"action"`
	EntityName string                 `json:"entity_name"`
	EntityID   string                 `json:"entity_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	Username   string                 `json:"username"`
	Role       string                 `json:"role"`
	OldData    map[string]interface{} `json:"old_data,omitempty"`
	NewData    map[string]interface{} `json:"new_data,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	DeviceInfo string                 `json:"device_info,omitempty"`
}

// Recorder is what callers depend on; Record never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Log writes entries to audit_logs.
type Log struct {
	client *postgrest.Client
	logger *zap.Logger
}

func NewLog(client *postgrest.Client, logger *zap.Logger) *Log {
	return &Log{client: client, logger: logger}
}

// Record inserts e with sensitive fields redacted. Failures are logged.
func (l *Log) Record(ctx context.Context, e Entry) {
	if err := l.insert(ctx, e); err != nil {
		l.logger.Warn("audit log write failed",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
	}
}

func (l *Log) insert(ctx context.Context, e Entry) error {
	e.OldData = Redact(e.OldData)
	e.NewData = Redact(e.NewData)
	if _, err := l.client.From(TableAuditLogs).Insert(e).Once().Execute(ctx); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Redact returns a copy of data with sensitive keys masked at any depth.
func Redact(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return Redact(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = redactValue(item)
		}
		return items
	default:
		return v
	}
}

// ActorFromRequest reads the actor headers, defaulting to the system admin.
func ActorFromRequest(c *gin.Context) Actor {
	actor := Actor{
		UserID:   strings.TrimSpace(c.GetHeader(HeaderUserID)),
		Username: strings.TrimSpace(c.GetHeader(HeaderUserName)),
		Role:     strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))),
	}
	if actor.Username == "" {
		actor.Username = defaultUsername
	}
	if actor.Role == "" {
		actor.Role = defaultRole
	}
	return actor
}

// FromRequest starts an entry attributed to the request's actor and client.
func FromRequest(c *gin.Context, action, entityName, entityID string) Entry {
	actor := ActorFromRequest(c)
	return Entry{
		Action:     action,
		EntityName: entityName,
		EntityID:   entityID,
		UserID:     actor.UserID,
		Username:   actor.Username,
		Role:       actor.Role,
		IPAddress:  c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	}
}
