package core

import (
	"errors"
	"testing"
)

func TestSessionOptions_ValidateRejectsCombinedFlags(t *testing.T) {
	cases := []struct {
		name    string
		options SessionOptions
		wantErr bool
	}{
		{"none", SessionOptions{}, false},
		{"create only", SessionOptions{CreateIfNone: true}, false},
		{"force only", SessionOptions{ForceNewSession: true}, false},
		{"silent only", SessionOptions{Silent: true}, false},
		{"create and silent", SessionOptions{CreateIfNone: true, Silent: true}, true},
		{"create and force", SessionOptions{CreateIfNone: true, ForceNewSession: true}, true},
		{"force and silent", SessionOptions{ForceNewSession: true, Silent: true}, true},
		{"all three", SessionOptions{CreateIfNone: true, ForceNewSession: true, Silent: true}, true},
		{"clear preference is orthogonal", SessionOptions{Silent: true, ClearSessionPreference: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.options.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidOptions) {
					t.Fatalf("expected ErrInvalidOptions, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtensionKey_Normalizes(t *testing.T) {
	if got := ExtensionKey("  GitHub.Copilot "); got != "github.copilot" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ExtensionKey(""); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestScopesKey_SortsAndTrims(t *testing.T) {
	if got := ScopesKey([]string{"repo", " user:email", "", "admin:org"}); got != "admin:org repo user:email" {
		t.Fatalf("unexpected scopes key %q", got)
	}
	if got := ScopesKey(nil); got != "" {
		t.Fatalf("expected empty scopes key, got %q", got)
	}
	if ScopesKey([]string{"b", "a"}) != ScopesKey([]string{"a", "b"}) {
		t.Fatalf("expected order-insensitive scopes key")
	}
}

func TestTokenEntry_CreatedAt(t *testing.T) {
	if _, ok := (TokenEntry{}).CreatedAt(); ok {
		t.Fatalf("expected missing created_at")
	}
	if _, ok := (TokenEntry{"created_at": "yesterday"}).CreatedAt(); ok {
		t.Fatalf("expected non-numeric created_at to be rejected")
	}
	for name, entry := range map[string]TokenEntry{
		"float": {"created_at": float64(1700000000)},
		"int64": {"created_at": int64(1700000000)},
		"int":   {"created_at": 1700000000},
	} {
		value, ok := entry.CreatedAt()
		if !ok || value != 1700000000 {
			t.Fatalf("%s: unexpected created_at %v %v", name, value, ok)
		}
	}
}
