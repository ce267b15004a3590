package auth

import "testing"

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: "0123456789abcdef"},
		{name: "short", token: "short", wantErr: true},
		{name: "empty", token: "", wantErr: true},
		{name: "padded", token: " 0123456789abcdef ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := HashToken("token-0123456789")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !VerifyToken(hash, "token-0123456789") {
		t.Fatal("expected token to verify")
	}
	if VerifyToken(hash, "wrong") {
		t.Fatal("expected wrong token to fail")
	}
	if VerifyToken("", "token-0123456789") {
		t.Fatal("expected empty hash to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := GenerateToken()
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if err := ValidateToken(a); err != nil {
		t.Fatalf("generated token invalid: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer "},
		{header: ""},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("BearerToken(%q)=%q,%v want %q,%v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
