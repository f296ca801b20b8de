package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/iam"
	"github.com/cloudemu/cloudemu/internal/stats"
)

// Stage names the 8 diagnostic-tracing stages a request passes through.
// There is deliberately no stage class hierarchy: each stage is a free
// function, composed by Wrap below.
type Stage int

const (
	StageClient Stage = iota + 1
	StageOptionsResolution
	StageEntry
	StageRouteMatch
	StageHandler
	StageService
	StageRepository
	StageResponseFormatter
)

func (s Stage) String() string {
	switch s {
	case StageClient:
		return "client"
	case StageOptionsResolution:
		return "options_resolution"
	case StageEntry:
		return "entry"
	case StageRouteMatch:
		return "route_match"
	case StageHandler:
		return "handler"
	case StageService:
		return "service"
	case StageRepository:
		return "repository"
	case StageResponseFormatter:
		return "response_formatter"
	default:
		return "unknown"
	}
}

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	identityKey
)

// WithCorrelationID attaches the stage-3 request id used in every log
// line and carried through context across all stages.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// LogStage emits a structured log line tagging the stage and correlation
// id.
func LogStage(ctx context.Context, stage Stage, format string, args ...interface{}) {
	glog.Infof("[cid=%s stage=%s] "+format, append([]interface{}{CorrelationID(ctx), stage}, args...)...)
}

// Pipeline wires stages 2-4 (options resolution, entry, route match) and
// the tail-end error-to-HTTP-status mapping (stage 8) around a handler
// that itself performs stages 5-7. It is the composition point the HTTP
// layer calls into per request.
type Pipeline struct {
	Auth      *Authenticator
	RateLimit *Limiter
}

func New(auth *Authenticator, rl *Limiter) *Pipeline {
	return &Pipeline{Auth: auth, RateLimit: rl}
}

// HandlerFunc is stage 5 (handler) through the rest of the chain; it
// returns an error from the cmn taxonomy, which Wrap translates to an
// HTTP status at stage 8.
type HandlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Wrap drives stages 2,3,4,8 around next (stages 5-7), one free function
// per stage rather than a class hierarchy.
func (p *Pipeline) Wrap(next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cid := cmn.NewID()
		ctx := WithCorrelationID(r.Context(), cid)
		LogStage(ctx, StageEntry, "%s %s", r.Method, r.URL.Path)

		ident, err := p.Auth.Authenticate(r)
		if err != nil {
			writeError(ctx, w, err)
			stats.RequestDuration.WithLabelValues(r.Method, "error").Observe(time.Since(start).Seconds())
			return
		}
		ctx = context.WithValue(ctx, identityKey, ident)

		if allowed, retryAfter, err := p.RateLimit.Allow(ident.Principal, r.URL.Path); err != nil {
			writeError(ctx, w, err)
			stats.RequestDuration.WithLabelValues(r.Method, "error").Observe(time.Since(start).Seconds())
			return
		} else if !allowed {
			w.Header().Set("Retry-After", retryAfter.String())
			stats.RateLimited.Inc()
			writeError(ctx, w, cmn.NewResourceExhausted("rate limit exceeded for %s", r.URL.Path))
			stats.RequestDuration.WithLabelValues(r.Method, "error").Observe(time.Since(start).Seconds())
			return
		}

		LogStage(ctx, StageRouteMatch, "matched %s", r.URL.Path)
		if err := next(ctx, w, r); err != nil {
			writeError(ctx, w, err)
			stats.RequestDuration.WithLabelValues(r.Method, "error").Observe(time.Since(start).Seconds())
			return
		}
		LogStage(ctx, StageResponseFormatter, "completed in %s", time.Since(start))
		stats.RequestDuration.WithLabelValues(r.Method, "ok").Observe(time.Since(start).Seconds())
	}
}

// IdentityFromContext retrieves the identity stage 2/3 attached, used by
// handlers that need the caller's principal (e.g. IAM enforcement,
// service-account scoping).
func IdentityFromContext(ctx context.Context) *iam.Identity {
	if v, ok := ctx.Value(identityKey).(*iam.Identity); ok {
		return v
	}
	return &iam.Identity{Principal: "anonymous"}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := cmn.AsTaxonomy(err)
	LogStage(ctx, StageResponseFormatter, "error: %v", e)
	status := e.HTTPStatus()
	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(e.Code()),
			"message": e.Error(),
			"status":  status,
		},
	}
	if status >= 500 {
		body["error"].(map[string]interface{})["correlationId"] = CorrelationID(ctx)
	}
	writeJSON(w, status, body)
}
