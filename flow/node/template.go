package node

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/lyzr/flowengine/flow/payload"
)

// RenderForm renders template expressions in form field values against
// the incoming payload. Expressions look like {{data.name|upper}}: a
// dotted path into the payload's data or metadata, with an optional
// filter. Non-string values and strings without expressions pass
// through unchanged.
func RenderForm(form map[string]any, in *payload.NodeOutput) map[string]any {
	out := make(map[string]any, len(form))
	for k, v := range form {
		s, ok := v.(string)
		if !ok || !strings.Contains(s, "{{") {
			out[k] = v
			continue
		}
		out[k] = RenderTemplate(s, in)
	}
	return out
}

// RenderTemplate renders a single template string against the payload
func RenderTemplate(tmpl string, in *payload.NodeOutput) string {
	t, err := fasttemplate.NewTemplate(tmpl, "{{", "}}")
	if err != nil {
		// Malformed template renders as-is
		return tmpl
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		return w.Write([]byte(resolveTag(strings.TrimSpace(tag), in)))
	})
}

func resolveTag(tag string, in *payload.NodeOutput) string {
	path := tag
	filter := ""
	if i := strings.IndexByte(tag, '|'); i >= 0 {
		path = strings.TrimSpace(tag[:i])
		filter = strings.TrimSpace(tag[i+1:])
	}

	val, ok := resolvePath(path, in)
	if !ok {
		return ""
	}

	s := stringify(val)
	switch filter {
	case "upper":
		return strings.ToUpper(s)
	case "lower":
		return strings.ToLower(s)
	case "trim":
		return strings.TrimSpace(s)
	default:
		return s
	}
}

func resolvePath(path string, in *payload.NodeOutput) (any, bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return nil, false
	}

	var current any
	switch parts[0] {
	case "data":
		current = in.Data
	case "metadata":
		current = in.Metadata
	default:
		return nil, false
	}

	for _, p := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
