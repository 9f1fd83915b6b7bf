package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	appURL := "https://vitals.example.com/dashboard"

	tests := []struct {
		name          string
		appURL        string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"no app url accepts anything", "", "https://elsewhere.example", false, true},
		{"empty origin", appURL, "", false, true},
		{"app origin", appURL, "https://vitals.example.com", false, true},

		{"different host", appURL, "https://evil.com", false, false},
		{"different port", appURL, "https://vitals.example.com:9090", false, false},
		{"http instead of https", appURL, "http://vitals.example.com", false, false},

		{"localhost dev", appURL, "http://localhost:3000", true, true},
		{"127.0.0.1 dev", appURL, "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", appURL, "http://localhost:3000", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newCheckOrigin(tt.appURL, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}
