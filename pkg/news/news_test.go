package news

import (
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "  ", want: 0},
		{in: "24h", want: 24 * time.Hour},
		{in: "7d", want: 7 * day},
		{in: "7D", want: 7 * day},
		{in: "2w", want: 14 * day},
		{in: "1m", want: 30 * day},
		{in: "1y", want: 365 * day},
		{in: "d", wantErr: true},
		{in: "0d", wantErr: true},
		{in: "-3d", wantErr: true},
		{in: "7x", wantErr: true},
		{in: "week", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Acme merges with Beta", want: "Acme merges with Beta"},
		{name: "whitespace", in: "  Acme\n merges\t ", want: "Acme merges"},
		{name: "entities", in: "AT&amp;T &quot;deal&quot;", want: `AT&T "deal"`},
		{name: "tags", in: "<b>Acme</b> merges <a href=\"x\">now</a>", want: "Acme merges now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	if NormalizeTitle("  Acme   MERGES ") != NormalizeTitle("acme merges") {
		t.Fatal("expected titles to normalize to the same key")
	}
}
