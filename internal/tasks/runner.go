package tasks

import (
	"context"
	"encoding/json"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
)

// IndexAdmin is the subset of the node API that task runners use
type IndexAdmin interface {
	CreateIndex(ctx context.Context, endpoint, index string, settings json.RawMessage) error
	DeleteIndex(ctx context.Context, endpoint, index string) error
	Reindex(ctx context.Context, endpoint, index string) error
	BulkParse(ctx context.Context, endpoint, index string, payload json.RawMessage) error
}

// Runner builds executable work for each task kind
type Runner struct {
	client IndexAdmin
	nodes  *registry.NodeRegistry
	status func(name string) models.NodeStatus
}

// NewRunner creates a task runner
func NewRunner(client IndexAdmin, nodes *registry.NodeRegistry,
	status func(name string) models.NodeStatus,
) *Runner {
	return &Runner{client: client, nodes: nodes, status: status}
}

type indexParams struct {
	Index    string          `json:"index"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type bulkParams struct {
	Index     string          `json:"index"`
	Documents json.RawMessage `json:"documents"`
}

// Build resolves a task kind and its parameters into a WorkFunc bound to the
// target node. The node must exist and be running.
func (r *Runner) Build(ctx context.Context, kind, node string, params json.RawMessage) (WorkFunc, error) {
	cfg, err := r.nodes.Get(ctx, node)
	if err != nil {
		return nil, err
	}
	if status := r.status(node); status != models.StatusRunning {
		return nil, errdefs.Conflict("node %s is %s, tasks require a running node", node, status)
	}
	endpoint := cfg.Endpoint()

	switch kind {
	case KindIndexCreate:
		p, err := parseIndexParams(params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(10)
			if err := r.client.CreateIndex(ctx, endpoint, p.Index, p.Settings); err != nil {
				return nil, err
			}
			return map[string]string{"index": p.Index, "action": "created"}, nil
		}, nil

	case KindIndexDelete:
		p, err := parseIndexParams(params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(10)
			if err := r.client.DeleteIndex(ctx, endpoint, p.Index); err != nil {
				return nil, err
			}
			return map[string]string{"index": p.Index, "action": "deleted"}, nil
		}, nil

	case KindReindex:
		p, err := parseIndexParams(params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(10)
			if err := r.client.Reindex(ctx, endpoint, p.Index); err != nil {
				return nil, err
			}
			return map[string]string{"index": p.Index, "action": "reindexed"}, nil
		}, nil

	case KindBulkParse:
		var p bulkParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		if p.Index == "" {
			return nil, errdefs.Validation("bulk parse requires an index")
		}
		if len(p.Documents) == 0 {
			return nil, errdefs.Validation("bulk parse requires documents")
		}
		return func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(10)
			if err := r.client.BulkParse(ctx, endpoint, p.Index, p.Documents); err != nil {
				return nil, err
			}
			return map[string]string{"index": p.Index, "action": "parsed"}, nil
		}, nil

	default:
		return nil, errdefs.Validation("unknown task kind %q", kind)
	}
}

func parseIndexParams(params json.RawMessage) (indexParams, error) {
	var p indexParams
	if err := unmarshalParams(params, &p); err != nil {
		return p, err
	}
	if p.Index == "" {
		return p, errdefs.Validation("task requires an index parameter")
	}
	return p, nil
}

func unmarshalParams(params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return errdefs.Validation("task parameters are required")
	}
	if err := json.Unmarshal(params, out); err != nil {
		return errdefs.Validation("invalid task parameters: %v", err)
	}
	return nil
}
