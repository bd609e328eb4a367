package vendors

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	// Vendor connectors are server processes, not browsers; Origin carries
	// no meaning here. Authentication is the handshake setup key.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SocketServer is the HTTP endpoint vendor connectors attach to. It checks
// the handshake credentials before any connection state exists and hands
// authenticated channels to the provisioning engine.
type SocketServer struct {
	engine   *Engine
	setupKey string
	logger   zerolog.Logger
}

// NewSocketServer creates the vendor websocket endpoint. setupKey is the
// shared setup credential; when empty every attach attempt is rejected.
func NewSocketServer(engine *Engine, setupKey string, logger zerolog.Logger) *SocketServer {
	return &SocketServer{
		engine:   engine,
		setupKey: setupKey,
		logger:   logger,
	}
}

// ServeHTTP upgrades the connection and runs the handshake precondition
// checks. Failures close the channel immediately with no state created.
func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setupKey := handshakeParam(r, HandshakeSetupKeyHeader, HandshakeSetupKeyParam)
	serviceName := handshakeParam(r, HandshakeServiceNameHeader, HandshakeServiceNameParam)

	if s.setupKey == "" {
		s.logger.Error().Msg("Vendor setup key is not configured, rejecting vendor connection")
		http.Error(w, "vendor registration disabled", http.StatusServiceUnavailable)
		return
	}
	if subtle.ConstantTimeCompare([]byte(setupKey), []byte(s.setupKey)) != 1 {
		s.logger.Warn().
			Str("remote", r.RemoteAddr).
			Msg("Vendor connection rejected, setup key invalid")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if serviceName == "" {
		s.logger.Warn().
			Str("remote", r.RemoteAddr).
			Msg("Vendor connection rejected, service name not set")
		http.Error(w, "vendor_service_name required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade vendor connection")
		return
	}

	vc := newConnection(conn, serviceName, s.logger)
	s.logger.Info().
		Str("connection", vc.ID).
		Str("service", serviceName).
		Str("remote", r.RemoteAddr).
		Msg("Vendor service attached")

	s.engine.Attach(vc)
}

// handshakeParam reads a handshake value from a header, falling back to a
// query parameter for clients that cannot set headers.
func handshakeParam(r *http.Request, header, param string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(param)
}
