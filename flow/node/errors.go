package node

import (
	"fmt"
	"strings"
)

// FormError describes one invalid form field
type FormError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FormError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ReadinessError is returned by IsReady when a node's configuration is
// incomplete. The validator aggregates these across the graph.
type ReadinessError struct {
	NodeID     string
	NodeType   string
	FormErrors []FormError
}

func (e *ReadinessError) Error() string {
	if len(e.FormErrors) == 0 {
		return fmt.Sprintf("node %s (%s) is not ready", e.NodeID, e.NodeType)
	}
	parts := make([]string, len(e.FormErrors))
	for i, fe := range e.FormErrors {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("node %s (%s) is not ready: %s", e.NodeID, e.NodeType, strings.Join(parts, "; "))
}
