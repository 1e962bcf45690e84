// Package chain carries values from one call's payload into later calls.
// A request names the values it exports with JMESPath expressions; the
// results are stored as session variables, so the next request can refer
// to them as {{name}}.
package chain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/jmespath/go-jmespath"
)

// Extract evaluates each rule against payload and returns the results as
// strings. Strings are returned unquoted, other values as compact JSON.
func Extract(payload []byte, rules map[string]string) (map[string]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("cannot extract variables: payload is not valid JSON")
	}

	extracted := make(map[string]string, len(rules))
	for _, name := range Names(rules) {
		expr := rules[name]
		result, err := jmespath.Search(expr, data)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s using %s: %w", name, expr, err)
		}

		switch v := result.(type) {
		case nil:
			return nil, fmt.Errorf("variable %s: %s returned null", name, expr)
		case string:
			extracted[name] = v
		case float64:
			extracted[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			extracted[name] = strconv.FormatBool(v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", name, err)
			}
			extracted[name] = string(raw)
		}
	}

	return extracted, nil
}

// Names returns the rule names in a stable order
func Names(rules map[string]string) []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
