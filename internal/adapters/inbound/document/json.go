package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// decodeJSON walks the token stream so that group order is preserved.
func decodeJSON(data []byte) ([]rawGroup, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing JSON document: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("parsing JSON document: top level must map group names to listings")
	}

	var groups []rawGroup
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing JSON document: %w", err)
		}
		name := keyTok.(string)

		var items []json.RawMessage
		if err := dec.Decode(&items); err != nil {
			return nil, &DecodeError{Group: name, Index: -1, Err: fmt.Errorf("expected a list of listings: %w", err)}
		}

		g := rawGroup{name: name, listings: make([]rawListing, 0, len(items))}
		for j, item := range items {
			l, err := jsonListing(item)
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

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parsing JSON document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parsing JSON document: unexpected data after top-level object")
	}
	return groups, nil
}

func jsonListing(data json.RawMessage) (rawListing, error) {
	obj, err := jsonObject(data)
	if err != nil {
		return rawListing{}, &DecodeError{Index: -1, Err: fmt.Errorf("invalid listing object: %w", err)}
	}

	l := rawListing{fields: make(map[string]string, len(obj))}
	for _, kv := range obj {
		if !listingKeys[kv.key] {
			return rawListing{}, unknownKey(kv.key)
		}
		if bytes.Equal(bytes.TrimSpace(kv.value), []byte("null")) {
			continue
		}
		if kv.key == "rateStrategyParams" {
			nested, err := jsonObject(kv.value)
			if err != nil {
				return rawListing{}, &DecodeError{Index: -1, Field: kv.key, Err: err}
			}
			l.rate = make(map[string]string, len(nested))
			for _, rkv := range nested {
				field := "rateStrategyParams." + rkv.key
				if !rateKeys[rkv.key] {
					return rawListing{}, unknownKey(field)
				}
				if bytes.Equal(bytes.TrimSpace(rkv.value), []byte("null")) {
					continue
				}
				s, err := jsonScalar(rkv.value)
				if err != nil {
					return rawListing{}, &DecodeError{Index: -1, Field: field, Err: err}
				}
				l.rate[rkv.key] = s
			}
			continue
		}
		s, err := jsonScalar(kv.value)
		if err != nil {
			return rawListing{}, &DecodeError{Index: -1, Field: kv.key, Err: err}
		}
		l.fields[kv.key] = s
	}
	return l, nil
}

type keyValue struct {
	key   string
	value json.RawMessage
}

// jsonObject splits an object into its members in order, rejecting duplicate keys.
func jsonObject(data json.RawMessage) ([]keyValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected an object")
	}

	var out []keyValue
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := keyTok.(string)
		if seen[key] {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, keyValue{key: key, value: value})
	}
	return out, nil
}

func jsonScalar(data json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
