package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

// syntaxError marks a request rejected before it reached the store.
type syntaxError struct {
	message string
}

func (e *syntaxError) Error() string { return e.message }

// request is a decoded RSGQuery.
type request map[string]any

// id returns the mandatory ID field key.
func (q request) id(key string) (id.ID, error) {
	s, ok := q[key].(string)
	if !ok {
		return id.Nil, &syntaxError{message: ErrMsgBadID}
	}
	parsed, err := id.Parse(s)
	if err != nil || parsed.IsNil() {
		return id.Nil, &syntaxError{message: ErrMsgBadID}
	}
	return parsed, nil
}

// optionalID returns the ID field key, or Nil when it is absent.
func (q request) optionalID(key string) (id.ID, error) {
	if _, ok := q[key]; !ok {
		return id.Nil, nil
	}
	return q.id(key)
}

// attributes returns the attribute filter, nil when absent.
func (q request) attributes() (types.Attributes, error) {
	var attrs types.Attributes
	if err := q.decode("attributes", &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// timeStamp accepts {"@stamptype":"TimeStampUTCms","stamp":ms} or plain
// milliseconds. An absent stamp means latest.
func (q request) timeStamp() (types.TimeStamp, error) {
	raw, ok := q["timeStamp"]
	if !ok || raw == nil {
		return types.TimeStamp{}, nil
	}
	if ms, ok := raw.(float64); ok {
		return types.FromMillis(ms), nil
	}
	var stamp jsoncodec.TimeStamp
	if err := q.decode("timeStamp", &stamp); err != nil {
		return types.TimeStamp{}, err
	}
	ts, err := stamp.Value()
	if err != nil {
		return types.TimeStamp{}, &syntaxError{message: ErrMsgGenericParser}
	}
	return ts, nil
}

func (q request) decode(key string, into any) error {
	raw, ok := q[key]
	if !ok || raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return &syntaxError{message: ErrMsgGenericParser}
	}
	if err := json.Unmarshal(b, into); err != nil {
		return &syntaxError{message: ErrMsgGenericParser}
	}
	return nil
}

func handleGetNodes(ctx context.Context, r *Runner, q request, result map[string]any) error {
	filter, err := q.attributes()
	if err != nil {
		return err
	}
	result["ids"] = id.Strings(r.store.GetNodes(ctx, filter))
	return nil
}

func handleGetNodeAttributes(ctx context.Context, r *Runner, q request, result map[string]any) error {
	nodeID, err := q.id("id")
	if err != nil {
		return err
	}
	attrs, err := r.store.GetNodeAttributes(ctx, nodeID)
	if err != nil {
		return err
	}
	if attrs == nil {
		attrs = types.Attributes{}
	}
	result["attributes"] = attrs
	return nil
}

func handleGetNodeParents(ctx context.Context, r *Runner, q request, result map[string]any) error {
	return idList(q, result, func(nodeID id.ID) ([]id.ID, error) {
		return r.store.GetNodeParents(ctx, nodeID)
	})
}

func handleGetGroupChildren(ctx context.Context, r *Runner, q request, result map[string]any) error {
	return idList(q, result, func(nodeID id.ID) ([]id.ID, error) {
		return r.store.GetGroupChildren(ctx, nodeID)
	})
}

func handleGetConnectionSourceIDs(ctx context.Context, r *Runner, q request, result map[string]any) error {
	return idList(q, result, func(nodeID id.ID) ([]id.ID, error) {
		return r.store.GetConnectionSourceIDs(ctx, nodeID)
	})
}

func handleGetConnectionTargetIDs(ctx context.Context, r *Runner, q request, result map[string]any) error {
	return idList(q, result, func(nodeID id.ID) ([]id.ID, error) {
		return r.store.GetConnectionTargetIDs(ctx, nodeID)
	})
}

func handleGetRootNode(_ context.Context, r *Runner, _ request, result map[string]any) error {
	result["rootId"] = r.store.RootID().String()
	return nil
}

func handleGetRemoteRootNodes(ctx context.Context, r *Runner, _ request, result map[string]any) error {
	result["ids"] = id.Strings(r.store.GetRemoteRootNodes(ctx))
	return nil
}

func handleGetTransform(ctx context.Context, r *Runner, q request, result map[string]any) error {
	nodeID, err := q.id("id")
	if err != nil {
		return err
	}
	reference, err := q.optionalID("idReferenceNode")
	if err != nil {
		return err
	}
	stamp, err := q.timeStamp()
	if err != nil {
		return err
	}
	transform, err := r.store.GetTransformForNode(ctx, nodeID, reference, stamp)
	if err != nil {
		return err
	}
	result["transform"] = jsoncodec.NewMatrix(transform)
	return nil
}

func handleGetGeometry(ctx context.Context, r *Runner, q request, result map[string]any) error {
	nodeID, err := q.id("id")
	if err != nil {
		return err
	}
	shape, stamp, err := r.store.GetGeometry(ctx, nodeID)
	if err != nil {
		return err
	}
	geometry, err := jsoncodec.NewGeometry(shape)
	if err != nil {
		return fmt.Errorf("render geometry: %w", err)
	}
	result["geometry"] = geometry
	result["unit"] = "m"
	result["timeStamp"] = jsoncodec.NewTimeStamp(stamp)
	return nil
}

// idList validates the id field, runs read and stores its answer under
// "ids". The list is present, possibly empty, even when read fails.
func idList(q request, result map[string]any, read func(id.ID) ([]id.ID, error)) error {
	nodeID, err := q.id("id")
	if err != nil {
		return err
	}
	ids, err := read(nodeID)
	result["ids"] = id.Strings(ids)
	return err
}
