package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_Allowed(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{name: "wildcard allows anything", origins: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "wildcard allows missing origin", origins: []string{"*"}, origin: "", want: true},
		{name: "listed origin", origins: []string{"https://app.example.com"}, origin: "https://app.example.com", want: true},
		{name: "case insensitive", origins: []string{"https://App.Example.com"}, origin: "HTTPS://app.example.COM", want: true},
		{name: "path is ignored", origins: []string{"https://app.example.com/"}, origin: "https://app.example.com", want: true},
		{name: "unlisted origin", origins: []string{"https://app.example.com"}, origin: "https://evil.example", want: false},
		{name: "port must match", origins: []string{"http://localhost:3000"}, origin: "http://localhost:4000", want: false},
		{name: "missing origin with list", origins: []string{"https://app.example.com"}, origin: "", want: false},
		{name: "garbage origin", origins: []string{"https://app.example.com"}, origin: "not a url", want: false},
		{name: "empty configuration", origins: nil, origin: "https://app.example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewOriginPolicy(tt.origins, testLogger())
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.Allowed(req))
		})
	}
}

func TestOriginPolicy_SkipsInvalidEntries(t *testing.T) {
	logger, buf := bufferLogger()
	policy := NewOriginPolicy([]string{"  ", "app.example.com", "https://ok.example"}, logger)

	assert.Len(t, policy.allowed, 1)
	assert.Contains(t, buf.String(), "ignoring invalid origin in configuration")
}

func TestOriginPolicy_CheckOriginLogsRejects(t *testing.T) {
	logger, buf := bufferLogger()
	policy := NewOriginPolicy([]string{"https://ok.example"}, logger)

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")

	assert.False(t, policy.CheckOrigin(req))
	assert.True(t, strings.Contains(buf.String(), "blocked websocket connection from disallowed origin"))
}
