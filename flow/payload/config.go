package payload

// NodeConfig is the static per-node configuration: a graph-unique id, the
// registry identifier, user-supplied form field values (possibly holding
// template expressions), and engine-assigned runtime parameters such as
// the queue name chosen by the queue mapper. Immutable after build.
type NodeConfig struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data NodeConfigData `json:"data"`
}

// NodeConfigData splits user input from engine-assigned parameters
type NodeConfigData struct {
	Form   map[string]any `json:"form"`
	Config map[string]any `json:"config"`
}

// FormString returns a form field as a string
func (c *NodeConfig) FormString(key string) string {
	if c.Data.Form == nil {
		return ""
	}
	s, _ := c.Data.Form[key].(string)
	return s
}

// ConfigString returns an engine-assigned parameter as a string
func (c *NodeConfig) ConfigString(key string) string {
	if c.Data.Config == nil {
		return ""
	}
	s, _ := c.Data.Config[key].(string)
	return s
}

// SetConfig sets an engine-assigned parameter. Only post-processors call
// this, before execution starts.
func (c *NodeConfig) SetConfig(key string, value any) {
	if c.Data.Config == nil {
		c.Data.Config = make(map[string]any)
	}
	c.Data.Config[key] = value
}
