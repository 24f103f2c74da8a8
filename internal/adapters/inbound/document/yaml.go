package document

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

func decodeYAML(data []byte) ([]rawGroup, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return nil, nil
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		root = root.Content[0]
	}
	root = deref(root)
	if isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must map group names to listings", root.Line)
	}

	groups := make([]rawGroup, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, value := root.Content[i].Value, deref(root.Content[i+1])
		if value.Kind != yaml.SequenceNode {
			return nil, &DecodeError{Group: name, Index: -1, Err: fmt.Errorf("line %d: expected a list of listings", value.Line)}
		}

		g := rawGroup{name: name, listings: make([]rawListing, 0, len(value.Content))}
		for j, item := range value.Content {
			l, err := yamlListing(deref(item))
			if err != nil {
				var de *DecodeError
				if errors.As(err, &de) {
					de.Group, de.Index = name, j
				}
				return nil, err
			}
			g.listings = append(g.listings, l)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func yamlListing(n *yaml.Node) (rawListing, error) {
	if n.Kind != yaml.MappingNode {
		return rawListing{}, &DecodeError{Index: -1, Err: fmt.Errorf("line %d: listing must be a mapping", n.Line)}
	}

	l := rawListing{fields: make(map[string]string)}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, deref(n.Content[i+1])
		if !listingKeys[key] {
			return rawListing{}, unknownKey(key)
		}
		if seen[key] {
			return rawListing{}, &DecodeError{Index: -1, Field: key, Err: fmt.Errorf("line %d: duplicate key", n.Content[i].Line)}
		}
		seen[key] = true

		if isNull(value) {
			continue
		}
		if key == "rateStrategyParams" {
			rate, err := yamlRate(value)
			if err != nil {
				return rawListing{}, err
			}
			l.rate = rate
			continue
		}
		if value.Kind != yaml.ScalarNode {
			return rawListing{}, &DecodeError{Index: -1, Field: key, Err: fmt.Errorf("line %d: expected a scalar value", value.Line)}
		}
		l.fields[key] = value.Value
	}
	return l, nil
}

func yamlRate(n *yaml.Node) (map[string]string, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &DecodeError{Index: -1, Field: "rateStrategyParams", Err: fmt.Errorf("line %d: expected a mapping", n.Line)}
	}
	rate := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, deref(n.Content[i+1])
		field := "rateStrategyParams." + key
		if !rateKeys[key] {
			return nil, unknownKey(field)
		}
		if _, dup := rate[key]; dup {
			return nil, &DecodeError{Index: -1, Field: field, Err: fmt.Errorf("line %d: duplicate key", n.Content[i].Line)}
		}
		if isNull(value) {
			continue
		}
		if value.Kind != yaml.ScalarNode {
			return nil, &DecodeError{Index: -1, Field: field, Err: fmt.Errorf("line %d: expected a scalar value", value.Line)}
		}
		rate[key] = value.Value
	}
	return rate, nil
}

// deref follows aliases so anchored listings can be reused.
func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
