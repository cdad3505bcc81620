package server

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func newTestHub(logger *slog.Logger) *Hub {
	registry := relay.NewRegistry(logger)
	return NewHub(registry, relay.NewDispatcher(registry, logger), logger)
}

func encode(t *testing.T, env protocol.Envelope) []byte {
	t.Helper()
	raw, err := protocol.Encode(env)
	require.NoError(t, err)
	return raw
}
