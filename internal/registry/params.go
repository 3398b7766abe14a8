package registry

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Params holds a plugin's raw configuration block until its factory decodes
// it onto a typed struct. Keys absent from the block keep the struct's
// existing values, so factories decode onto their defaults.
type Params struct {
	node *yaml.Node
}

// NewParams wraps an already-parsed YAML node.
func NewParams(node *yaml.Node) Params {
	return Params{node: node}
}

// ParamsFrom encodes v (typically a map or a params struct) as Params.
func ParamsFrom(v any) (Params, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return Params{}, fmt.Errorf("encode params: %w", err)
	}
	return Params{node: &n}, nil
}

// Empty reports whether no parameters were given.
func (p Params) Empty() bool {
	return p.node == nil || p.node.Kind == 0 || p.node.Tag == "!!null"
}

// Decode fills v from the parameters. Empty parameters leave v unchanged.
func (p Params) Decode(v any) error {
	if p.Empty() {
		return nil
	}
	if p.node.Kind != yaml.MappingNode {
		return fmt.Errorf("params: expected a mapping, got %s", p.node.ShortTag())
	}
	if err := p.node.Decode(v); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// UnmarshalYAML keeps the raw node for later decoding.
func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	n := *value
	p.node = &n
	return nil
}

func (p Params) MarshalYAML() (any, error) {
	if p.Empty() {
		return nil, nil
	}
	return p.node, nil
}

// MarshalJSON renders the parameters as a JSON object, for run manifests.
func (p Params) MarshalJSON() ([]byte, error) {
	if p.Empty() {
		return []byte("{}"), nil
	}
	var v map[string]any
	if err := p.node.Decode(&v); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	return json.Marshal(v)
}
