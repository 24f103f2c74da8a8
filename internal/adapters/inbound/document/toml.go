package document

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"
)

// decodeTOML reads documents written as arrays of tables:
//
//	[["USDC/USDT"]]
//	asset = "0xea237441c92cae6fc17caaf9a7acb3f953be4bd1"
//	rateStrategyParams = { optimalUsageRatio = 80_00, ... }
//
// TOML integers cannot hold a 160-bit address, so addresses must be strings.
func decodeTOML(data []byte) ([]rawGroup, error) {
	var doc map[string]any
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML document: %w", err)
	}

	var order []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) == 0 || seen[key[0]] {
			continue
		}
		seen[key[0]] = true
		order = append(order, key[0])
	}

	groups := make([]rawGroup, 0, len(order))
	for _, name := range order {
		items, err := tomlTables(doc[name])
		if err != nil {
			return nil, &DecodeError{Group: name, Index: -1, Err: err}
		}

		g := rawGroup{name: name, listings: make([]rawListing, 0, len(items))}
		for j, item := range items {
			l, err := tomlListing(item)
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

func tomlTables(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("listing must be a table, got %T", item)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an array of listing tables, got %T", v)
}

func tomlListing(m map[string]any) (rawListing, error) {
	l := rawListing{fields: make(map[string]string, len(m))}
	for key, value := range m {
		if !listingKeys[key] {
			return rawListing{}, unknownKey(key)
		}
		if key == "rateStrategyParams" {
			nested, ok := value.(map[string]any)
			if !ok {
				return rawListing{}, &DecodeError{Index: -1, Field: key, Err: fmt.Errorf("expected a table, got %T", value)}
			}
			l.rate = make(map[string]string, len(nested))
			for rk, rv := range nested {
				field := "rateStrategyParams." + rk
				if !rateKeys[rk] {
					return rawListing{}, unknownKey(field)
				}
				s, err := tomlScalar(rv)
				if err != nil {
					return rawListing{}, &DecodeError{Index: -1, Field: field, Err: err}
				}
				l.rate[rk] = s
			}
			continue
		}
		s, err := tomlScalar(value)
		if err != nil {
			return rawListing{}, &DecodeError{Index: -1, Field: key, Err: err}
		}
		l.fields[key] = s
	}
	return l, nil
}

func tomlScalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
