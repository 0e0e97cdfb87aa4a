package auth

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/contextkeys"
	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// Audit actions
const (
	ActionLogin        = "auth.login"
	ActionLogout       = "auth.logout"
	ActionUserCreated  = "user.created"
	ActionHandleChange = "user.handle_changed"
)

// Audit statuses
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEvent is a security-relevant event
type AuditEvent struct {
	Action    string
	UserID    *int64
	Subject   string
	IPAddress string
	UserAgent string
	Status    string
	Error     error
	Timestamp time.Time
}

// AuditLogger writes audit events as structured log lines tagged audit=true
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates an audit logger. A nil logger falls back to the
// request-scoped logger on each call.
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Log records an event
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logger := al.logger
	if logger == nil {
		logger = observability.GetLogger(ctx)
	}

	fields := map[string]interface{}{
		"audit":  true,
		"action": event.Action,
		"status": event.Status,
		"at":     event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}

	entry := logger.WithFields(fields).WithError(event.Error)
	if event.Status == AuditFailure {
		entry.Warn("audit event")
		return
	}
	entry.Info("audit event")
}

// LogFromRequest fills client details from r and records the event
func (al *AuditLogger) LogFromRequest(r *http.Request, event AuditEvent) {
	event.IPAddress = ClientIP(r)
	event.UserAgent = r.UserAgent()
	al.Log(r.Context(), event)
}

// ClientIP returns the address resolved by httputil.ClientIPMiddleware, or
// the socket peer when the middleware did not run. Forwarding headers are
// never read here.
func ClientIP(r *http.Request) string {
	if ip := contextkeys.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
