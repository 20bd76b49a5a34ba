package template

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		prefix   string
		wantAuth string
	}{
		{prefix: "", wantAuth: "/authorize"},
		{prefix: "/", wantAuth: "/authorize"},
		{prefix: "oauth/v2", wantAuth: "/oauth/v2/authorize"},
		{prefix: "/application/o/", wantAuth: "/application/o/authorize"},
	}
	for _, tt := range tests {
		d := New(" Zitadel ", tt.prefix)
		if d.Name != "zitadel" {
			t.Fatalf("Name = %q, want zitadel", d.Name)
		}
		if d.AuthURL != tt.wantAuth {
			t.Fatalf("prefix %q: AuthURL = %q, want %q", tt.prefix, d.AuthURL, tt.wantAuth)
		}
	}
}
