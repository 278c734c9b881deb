package transform

import "testing"

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Complete bool `json:"is_complete"`
	}

	if err := decodeJSON("```json\n{\"is_complete\": true}\n```", &out); err != nil {
		t.Fatalf("fenced JSON: %v", err)
	}
	if !out.Complete {
		t.Error("expected is_complete to decode true")
	}

	if err := decodeJSON("Sure, here is the result: {\"is_complete\": false} hope that helps", &out); err != nil {
		t.Fatalf("prose-wrapped JSON: %v", err)
	}
	if out.Complete {
		t.Error("expected is_complete to decode false")
	}

	if err := decodeJSON("no json at all", &out); err == nil {
		t.Error("expected error for response without JSON")
	}
}
