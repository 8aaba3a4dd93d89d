// Package query answers RSGQuery messages against a scene graph store and
// routes RSGUpdate messages through the textual codec's decode path.
//
// The runner is a stateless translator. It never panics at its boundary and
// always answers with a result message:
//
//	runner := query.NewRunner(store)
//	result := runner.RunJSON(ctx, []byte(`{"@worldmodeltype":"RSGQuery","query":"GET_ROOT_NODE"}`))
//	// {"@worldmodeltype":"RSGQueryResult","query":"GET_ROOT_NODE","querySuccess":true,"rootId":"00000000-..."}
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/scene"
)

// Query operations accepted in the "query" field of an RSGQuery.
const (
	GetNodes               = "GET_NODES"
	GetNodeAttributes      = "GET_NODE_ATTRIBUTES"
	GetNodeParents         = "GET_NODE_PARENTS"
	GetGroupChildren       = "GET_GROUP_CHILDREN"
	GetRootNode            = "GET_ROOT_NODE"
	GetRemoteRootNodes     = "GET_REMOTE_ROOT_NODES"
	GetTransform           = "GET_TRANSFORM"
	GetGeometry            = "GET_GEOMETRY"
	GetConnectionSourceIDs = "GET_CONNECTION_SOURCE_IDS"
	GetConnectionTargetIDs = "GET_CONNECTION_TARGET_IDS"
)

// Error messages reported in error.message for malformed requests.
const (
	ErrMsgNoModelType    = "Syntax error: Top level model type @worldmodeltype does not exist."
	ErrMsgWrongModelType = "Syntax error: Mandatory @worldmodeltype field not set in RSGQuery"
	ErrMsgNoQuery        = "Syntax error: Mandatory query field not set in RSGQuery"
	ErrMsgUnknownQuery   = "Syntax error: Mandatory query field has unknown value in RSGQuery"
	ErrMsgBadID          = "Syntax error: Wrong or missing id."
	ErrMsgGenericParser  = "Syntax error: Generic parser error."
)

// handler executes one query operation and fills result.
type handler func(ctx context.Context, r *Runner, req request, result map[string]any) error

var handlers = map[string]handler{
	GetNodes:               handleGetNodes,
	GetNodeAttributes:      handleGetNodeAttributes,
	GetNodeParents:         handleGetNodeParents,
	GetGroupChildren:       handleGetGroupChildren,
	GetRootNode:            handleGetRootNode,
	GetRemoteRootNodes:     handleGetRemoteRootNodes,
	GetTransform:           handleGetTransform,
	GetGeometry:            handleGetGeometry,
	GetConnectionSourceIDs: handleGetConnectionSourceIDs,
	GetConnectionTargetIDs: handleGetConnectionTargetIDs,
}

// Runner executes query and update messages against a store.
// It is safe for concurrent use; all state lives in the store.
type Runner struct {
	store  *scene.Store
	target jsoncodec.Target
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for the rsg.query span.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithUpdateTarget routes RSGUpdate messages to target instead of the
// store, e.g. through an input filter. Queries still read the store.
func WithUpdateTarget(target jsoncodec.Target) Option {
	return func(r *Runner) {
		if target != nil {
			r.target = target
		}
	}
}

// NewRunner creates a Runner over store.
func NewRunner(store *scene.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("rsg"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.target == nil {
		r.target = store
	}
	r.logger = r.logger.With("component", "query")
	return r
}

// RunJSON decodes msg, runs it and encodes the result.
func (r *Runner) RunJSON(ctx context.Context, msg []byte) []byte {
	var decoded map[string]any
	var result map[string]any
	if err := json.Unmarshal(msg, &decoded); err != nil {
		r.logger.Error("parser error at input query, omitting it", "error", err)
		result = errorResult(ErrMsgGenericParser)
	} else {
		result = r.Run(ctx, decoded)
	}

	out, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("cannot serialize query result", "error", err)
		out, _ = json.Marshal(errorResult(ErrMsgGenericParser))
	}
	return out
}

// Run executes one decoded RSGQuery or RSGUpdate message.
func (r *Runner) Run(ctx context.Context, msg map[string]any) (result map[string]any) {
	ctx, span := r.tracer.Start(ctx, "rsg.query", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("generic parser error, omitting this query", "panic", fmt.Sprint(p))
			result = errorResult(ErrMsgGenericParser)
			span.SetStatus(codes.Error, ErrMsgGenericParser)
		}
	}()

	modelType, ok := msg["@worldmodeltype"]
	if !ok {
		return r.reject(span, ErrMsgNoModelType)
	}
	span.SetAttributes(attribute.String("rsg.query.model_type", fmt.Sprint(modelType)))

	switch modelType {
	case jsoncodec.TypeQuery:
		return r.runQuery(ctx, span, msg)
	case jsoncodec.TypeUpdate:
		return r.runUpdate(ctx, span, msg)
	default:
		r.logger.Error("unexpected @worldmodeltype", "type", modelType)
		return r.reject(span, ErrMsgWrongModelType)
	}
}

func (r *Runner) runQuery(ctx context.Context, span trace.Span, msg map[string]any) map[string]any {
	raw, ok := msg["query"]
	if !ok {
		return r.reject(span, ErrMsgNoQuery)
	}
	op, _ := raw.(string)
	h, ok := handlers[op]
	if !ok {
		r.logger.Error("mandatory query field has unknown value", "query", raw)
		return r.reject(span, ErrMsgUnknownQuery)
	}
	span.SetAttributes(attribute.String("rsg.query.op", op))

	result := map[string]any{
		"@worldmodeltype": jsoncodec.TypeQueryResult,
		"query":           op,
		"querySuccess":    false,
	}
	err := h(ctx, r, request(msg), result)

	var syntax *syntaxError
	switch {
	case err == nil:
		result["querySuccess"] = true
		span.SetAttributes(attribute.Bool("rsg.query.success", true))
	case errors.As(err, &syntax):
		return r.reject(span, syntax.message)
	default:
		r.logger.Debug("query failed", "query", op, "error", err)
		result["error"] = map[string]any{"message": rsgerr.Message(err)}
		span.SetAttributes(attribute.Bool("rsg.query.success", false))
		span.SetStatus(codes.Error, string(rsgerr.KindOf(err)))
	}
	return result
}

func (r *Runner) runUpdate(ctx context.Context, span trace.Span, msg map[string]any) map[string]any {
	result := map[string]any{
		"@worldmodeltype": jsoncodec.TypeUpdateResult,
		"updateSuccess":   false,
	}
	if err := jsoncodec.Apply(ctx, msg, r.target); err != nil {
		r.logger.Warn("update failed", "operation", msg["operation"], "error", err)
		result["error"] = map[string]any{"message": rsgerr.Message(err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(rsgerr.KindOf(err)))
		return result
	}
	result["updateSuccess"] = true
	return result
}

func (r *Runner) reject(span trace.Span, message string) map[string]any {
	r.logger.Error("rejecting message", "error", message)
	span.SetStatus(codes.Error, message)
	return errorResult(message)
}

func errorResult(message string) map[string]any {
	return map[string]any{
		"@worldmodeltype": jsoncodec.TypeQueryResult,
		"querySuccess":    false,
		"error":           map[string]any{"message": message},
	}
}
