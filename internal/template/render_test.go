package template

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		context map[string]string
		want    string
	}{
		{
			name:    "nil context returns input unchanged",
			input:   "Hi {{customer_name}}, see you at {{time}}",
			context: nil,
			want:    "Hi {{customer_name}}, see you at {{time}}",
		},
		{
			name:    "empty context returns input unchanged",
			input:   "Hi {{customer_name}}",
			context: map[string]string{},
			want:    "Hi {{customer_name}}",
		},
		{
			name:    "simple substitution",
			input:   "Hi {{x}}",
			context: map[string]string{"x": "Ada"},
			want:    "Hi Ada",
		},
		{
			name:    "repeated placeholder replaced everywhere",
			input:   "{{name}} and {{name}} again",
			context: map[string]string{"name": "Bo"},
			want:    "Bo and Bo again",
		},
		{
			name:    "missing key left intact",
			input:   "Hi {{customer_name}}, your code is {{code}}",
			context: map[string]string{"code": "1234"},
			want:    "Hi {{customer_name}}, your code is 1234",
		},
		{
			name:  "key that is a substring of another key",
			input: "{{name}} / {{name_full}}",
			context: map[string]string{
				"name":      "Bo",
				"name_full": "Bo Jackson",
			},
			want: "Bo / Bo Jackson",
		},
		{
			name:    "substituted value is not rescanned",
			input:   "a {{x}} b",
			context: map[string]string{"x": "{{y}}", "y": "nope"},
			want:    "a {{y}} b",
		},
		{
			name:    "unterminated placeholder left as-is",
			input:   "Hi {{customer",
			context: map[string]string{"customer": "Ada"},
			want:    "Hi {{customer",
		},
		{
			name:    "no placeholders",
			input:   "plain text",
			context: map[string]string{"x": "y"},
			want:    "plain text",
		},
		{
			name:    "empty key",
			input:   "a {{}} b",
			context: map[string]string{"": "X"},
			want:    "a X b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.input, tt.context); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderRemovesResolvedPlaceholder(t *testing.T) {
	for _, value := range []string{"Ada", "42", "true", ""} {
		got := Render("Hi {{x}}", map[string]string{"x": value})
		if strings.Contains(got, "{{x}}") {
			t.Errorf("Render left {{x}} unresolved for value %q: %q", value, got)
		}
		if !strings.Contains(got, value) {
			t.Errorf("Render dropped value %q: %q", value, got)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("Hi {{name}}, {{name}}: {{business_name}} at {{time}}")
	want := []string{"name", "business_name", "time"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}

	if keys := Placeholders("no placeholders"); keys != nil {
		t.Errorf("expected nil for plain text, got %v", keys)
	}
}

func TestContextFromJSON(t *testing.T) {
	raw := json.RawMessage(`{
		"customer_name": "Ada",
		"visits": 3,
		"vip": true,
		"note": null,
		"nested": {"skipped": 1},
		"tags": ["a", "b"]
	}`)

	got := ContextFromJSON(raw)
	want := map[string]string{
		"customer_name": "Ada",
		"visits":        "3",
		"vip":           "true",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ContextFromJSON() = %v, want %v", got, want)
	}

	if ctx := ContextFromJSON(nil); len(ctx) != 0 {
		t.Errorf("expected empty context for nil input, got %v", ctx)
	}
	if ctx := ContextFromJSON(json.RawMessage(`not json`)); len(ctx) != 0 {
		t.Errorf("expected empty context for invalid input, got %v", ctx)
	}
}
