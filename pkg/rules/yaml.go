package rules

import (
	"slices"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// variant splits an externally tagged YAML value. A bare scalar names a
// variant without a value; a single-key mapping names a variant and carries
// its value.
func variant(node *yaml.Node, what string) (name string, value *yaml.Node, err error) {
	node = resolveAlias(node)
	switch {
	case node == nil:
		return "", nil, errors.Errorf("missing %s", what)
	case node.Kind == yaml.ScalarNode:
		return node.Value, nil, nil
	case node.Kind == yaml.MappingNode && len(node.Content) == 2:
		value := resolveAlias(node.Content[1])
		if value != nil && value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
			value = nil
		}
		return node.Content[0].Value, value, nil
	default:
		return "", nil, errors.Errorf("line %d: %s must be a name or a mapping with exactly one key", node.Line, what)
	}
}

// checkKeys rejects mapping keys outside allowed. Decoding through
// yaml.Node.Decode does not inherit the decoder's KnownFields setting, so
// variants with fields enforce it themselves.
func checkKeys(node *yaml.Node, what string, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: %s must be a mapping", node.Line, what)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		if !slices.Contains(allowed, key.Value) {
			return errors.Errorf("line %d: unknown field %q in %s", key.Line, key.Value, what)
		}
	}
	return nil
}

func requireValue(name string, value *yaml.Node, line int) error {
	if value == nil {
		return errors.Errorf("line %d: %q requires a value", line, name)
	}
	return nil
}

func rejectValue(name string, value *yaml.Node) error {
	if value != nil {
		return errors.Errorf("line %d: %q takes no value", value.Line, name)
	}
	return nil
}
