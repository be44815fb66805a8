package bridge

import "testing"

func TestRedactSecretsRedactsKnownParams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no query string",
			in:   "/connections",
			want: "/connections",
		},
		{
			name: "password redacted",
			in:   "/connections?password=hunter2",
			want: "/connections?password=%5BREDACTED%5D",
		},
		{
			name: "case-insensitive match",
			in:   "/connections?TOKEN=abc123",
			want: "/connections?TOKEN=%5BREDACTED%5D",
		},
		{
			name: "unrelated params left alone",
			in:   "/connections?host=example.com",
			want: "/connections?host=example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSecrets(tt.in)
			if got != tt.want {
				t.Errorf("redactSecrets(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactQueryPatternsFallsBackOnUnparsableQuery(t *testing.T) {
	in := "/connections?password=abc;def"
	got := redactQueryPatterns(in)
	if got == in {
		t.Errorf("expected redactQueryPatterns to rewrite %q", in)
	}
}
