package node

import (
	"context"
	"sync/atomic"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/common/storage"
	"github.com/lyzr/flowengine/flow/payload"
)

// Services are the storage collaborators node bodies may call
type Services struct {
	Queue   *storage.QueueStore
	Cache   *storage.CacheStore
	Webhook *storage.WebhookChannel
	Logger  *logger.Logger
}

// Base carries the state and default behavior shared by all nodes.
// Concrete nodes embed it and implement Run.
type Base struct {
	cfg           payload.NodeConfig
	kind          Kind
	pool          payload.ExecutionPool
	inPorts       []Port
	outPorts      []Port
	workflowTypes []WorkflowType
	validated     atomic.Bool
}

// NewBase constructs the embedded base for a concrete node
func NewBase(cfg payload.NodeConfig, kind Kind, pool payload.ExecutionPool) Base {
	inPorts := DefaultInputPorts
	outPorts := DefaultOutputPorts
	switch kind {
	case KindProducer:
		inPorts = nil
	case KindConditional:
		outPorts = ConditionalOutputPorts
	case KindLoop:
		outPorts = LoopOutputPorts
	}
	return Base{
		cfg:           cfg,
		kind:          kind,
		pool:          pool,
		inPorts:       inPorts,
		outPorts:      outPorts,
		workflowTypes: []WorkflowType{WorkflowProduction, WorkflowAPI},
	}
}

func (b *Base) ID() string                             { return b.cfg.ID }
func (b *Base) Type() string                           { return b.cfg.Type }
func (b *Base) Kind() Kind                             { return b.kind }
func (b *Base) ExecutionPool() payload.ExecutionPool   { return b.pool }
func (b *Base) InputPorts() []Port                     { return b.inPorts }
func (b *Base) OutputPorts() []Port                    { return b.outPorts }
func (b *Base) Config() *payload.NodeConfig            { return &b.cfg }
func (b *Base) SupportedWorkflowTypes() []WorkflowType { return b.workflowTypes }

// SetSupportedWorkflowTypes restricts the modes this node runs in
func (b *Base) SetSupportedWorkflowTypes(types ...WorkflowType) {
	b.workflowTypes = types
}

// Init is a no-op by default
func (b *Base) Init(ctx context.Context) error { return nil }

// Cleanup is a no-op by default
func (b *Base) Cleanup(ctx context.Context, in *payload.NodeOutput) error { return nil }

// IsReady passes by default; nodes with required form fields override it
func (b *Base) IsReady() error { return nil }

func (b *Base) MarkValidated() { b.validated.Store(true) }
func (b *Base) Validated() bool { return b.validated.Load() }

// PopulateFormValues renders the node's form against the incoming
// payload and returns the resolved field map. Fields without template
// expressions pass through unchanged.
func (b *Base) PopulateFormValues(in *payload.NodeOutput) map[string]any {
	return RenderForm(b.cfg.Data.Form, in)
}

// RequireFormFields builds a ReadinessError listing every missing field,
// or nil when all are present
func (b *Base) RequireFormFields(fields ...string) error {
	var formErrs []FormError
	for _, f := range fields {
		v, ok := b.cfg.Data.Form[f]
		if !ok || v == "" || v == nil {
			formErrs = append(formErrs, FormError{Field: f, Message: "required"})
		}
	}
	if len(formErrs) == 0 {
		return nil
	}
	return &ReadinessError{NodeID: b.cfg.ID, NodeType: b.cfg.Type, FormErrors: formErrs}
}
