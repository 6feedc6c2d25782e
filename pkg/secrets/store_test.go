package secrets

import (
	"context"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default is env", provider: "", wantErr: false},
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "consul", wantErr: true, errContains: "unknown secrets provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestMemoryStoreBasicContract(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "token_signing_secret"); err == nil {
		t.Fatalf("expected error for missing secret")
	}
	if err := s.Set(ctx, "token_signing_secret", "value"); err != nil {
		t.Fatalf("set secret failed: %v", err)
	}
	got, err := s.Get(ctx, "token_signing_secret")
	if err != nil {
		t.Fatalf("get secret failed: %v", err)
	}
	if got != "value" {
		t.Fatalf("get secret = %q, want value", got)
	}
}

func TestEnvStoreNormalizesKeys(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TOKEN_SIGNING_SECRET", "from-env")

	s := NewEnvStore()
	got, err := s.Get(ctx, "token.signing-secret")
	if err != nil {
		t.Fatalf("get secret failed: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("get secret = %q, want from-env", got)
	}
}
