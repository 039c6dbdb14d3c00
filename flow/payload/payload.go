// Package payload defines the typed payload that flows along graph edges:
// NodeOutput with its data and metadata maps, the ExecutionCompleted
// sentinel, per-node static configuration, and the execution pool enum.
package payload

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Engine-private metadata keys
const (
	MetaAPIMode            = "__api_mode__"
	MetaRequestContext     = "__request_context__"
	MetaExecutionCompleted = "__execution_completed__"
	MetaWorkflowEnv        = "workflow_env"
	MetaRuntime            = "runtime"
	MetaSourceNode         = "source_node"
	MetaOperation          = "operation"
)

// Reserved data keys
const (
	DataHTTPResponse = "__http_response__"
	DataForEachNode  = "forEachNode"
)

// ExecutionPool identifies the worker pool a node prefers
type ExecutionPool string

const (
	PoolAsync   ExecutionPool = "async"
	PoolThread  ExecutionPool = "thread"
	PoolProcess ExecutionPool = "process"
)

// NodeOutput is an in-flight payload. Downstream nodes add keys to Data;
// Metadata carries routing hints and engine-private markers. A NodeOutput
// is moved through the graph and never shared across parallel branches.
type NodeOutput struct {
	ID       string         `json:"id"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// New creates an empty NodeOutput with a fresh id
func New() *NodeOutput {
	return &NodeOutput{
		ID:       uuid.New().String(),
		Data:     make(map[string]any),
		Metadata: make(map[string]any),
	}
}

// NewExecutionCompleted creates the sentinel that signals workflow
// termination. On receipt each node's Cleanup runs instead of Run, and
// runners forward the sentinel to every outgoing branch.
func NewExecutionCompleted() *NodeOutput {
	out := New()
	out.Metadata[MetaExecutionCompleted] = true
	return out
}

// IsExecutionCompleted reports whether the payload carries the
// termination sentinel
func (o *NodeOutput) IsExecutionCompleted() bool {
	if o == nil || o.Metadata == nil {
		return false
	}
	v, ok := o.Metadata[MetaExecutionCompleted].(bool)
	return ok && v
}

// IsAPIMode reports whether the payload belongs to a single-pass API run
func (o *NodeOutput) IsAPIMode() bool {
	if o == nil || o.Metadata == nil {
		return false
	}
	v, ok := o.Metadata[MetaAPIMode].(bool)
	return ok && v
}

// Clone returns an independent deep copy. Parallel branches each receive
// their own clone of the pre-fork payload.
func (o *NodeOutput) Clone() *NodeOutput {
	return &NodeOutput{
		ID:       o.ID,
		Data:     deepCopyMap(o.Data),
		Metadata: deepCopyMap(o.Metadata),
	}
}

// SetData adds value under base, resolving key collisions by appending
// _2, _3, ... Returns the key actually used.
func (o *NodeOutput) SetData(base string, value any) string {
	if o.Data == nil {
		o.Data = make(map[string]any)
	}
	key := base
	for n := 2; ; n++ {
		if _, exists := o.Data[key]; !exists {
			break
		}
		key = fmt.Sprintf("%s_%d", base, n)
	}
	o.Data[key] = value
	return key
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}

// HTTPResponse is the reserved output shape the API runner returns
// directly to the HTTP layer
type HTTPResponse struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

// ExtractHTTPResponse returns the reserved HTTP response shape if the
// payload's data carries one
func (o *NodeOutput) ExtractHTTPResponse() (*HTTPResponse, bool) {
	if o == nil || o.Data == nil {
		return nil, false
	}
	flagged, ok := o.Data[DataHTTPResponse].(bool)
	if !ok || !flagged {
		return nil, false
	}

	resp := &HTTPResponse{Status: 200}
	if s, ok := toInt(o.Data["status"]); ok {
		resp.Status = s
	}
	resp.Body = o.Data["body"]
	return resp, true
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
