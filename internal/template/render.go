// Package template substitutes {{variable}} placeholders in message bodies
// and subjects.
package template

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Render replaces every {{key}} occurrence whose key is present in context.
// The scan is a single left-to-right pass keyed on the placeholder syntax,
// so one key being a substring of another can never cause double
// substitution, and substituted values are never rescanned. Keys missing
// from context are left intact, including the braces. With an empty or nil
// context the input is returned unchanged. No escaping is applied.
func Render(s string, context map[string]string) string {
	if len(context) == 0 {
		return s
	}

	var b strings.Builder
	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			break
		}
		open += i

		end := strings.Index(s[open+2:], "}}")
		if end < 0 {
			break
		}
		key := s[open+2 : open+2+end]

		value, ok := context[key]
		if !ok {
			// Unresolved placeholder: emit the braces literally and keep
			// scanning after them.
			b.WriteString(s[i : open+2])
			i = open + 2
			continue
		}

		b.WriteString(s[i:open])
		b.WriteString(value)
		i = open + 2 + end + 2
	}
	b.WriteString(s[i:])
	return b.String()
}

// Placeholders lists the distinct placeholder keys referenced in s, in
// order of first appearance.
func Placeholders(s string) []string {
	var keys []string
	seen := make(map[string]bool)

	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			break
		}
		open += i

		end := strings.Index(s[open+2:], "}}")
		if end < 0 {
			break
		}
		key := s[open+2 : open+2+end]
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		i = open + 2 + end + 2
	}
	return keys
}

// ContextFromJSON flattens a JSON object into a render context. Scalar
// values are stringified; nested objects and arrays are skipped.
func ContextFromJSON(raw json.RawMessage) map[string]string {
	context := make(map[string]string)
	if len(raw) == 0 {
		return context
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return context
	}

	for key, value := range data {
		switch v := value.(type) {
		case string:
			context[key] = v
		case float64:
			context[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			context[key] = strconv.FormatBool(v)
		}
	}
	return context
}
