package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/identity"
	"github.com/Tyrowin/gorelay/internal/relay"
)

const (
	chatEndpoint   = "/ws"
	signalEndpoint = "/signal"
)

// Server wires the chat router and the signaling relay to their WebSocket
// endpoints. It owns the hub and every registry behind it.
type Server struct {
	cfg      config.Config
	log      *zap.Logger
	hub      *Hub
	router   *relay.Router
	signaler *relay.Signaler
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// New assembles a Server from cfg. It fails when no admin secret is set.
func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = config.Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	relayMetrics := relay.NewMetrics(reg)

	store := identity.NewStore(identity.WithBcryptCost(cfg.BcryptCost))
	router, err := relay.NewRouter(store, cfg.AdminSecret,
		relay.WithLogger(log.Named("chat")),
		relay.WithMetrics(relayMetrics))
	if err != nil {
		return nil, errors.Wrap(err, "create chat router")
	}
	signaler := relay.NewSignaler(
		relay.WithLogger(log.Named("signal")),
		relay.WithMetrics(relayMetrics))

	origins := newOriginPolicy(cfg, log)
	return &Server{
		cfg:      cfg,
		log:      log,
		hub:      NewHub(cfg, log.Named("hub"), NewMetrics(reg)),
		router:   router,
		signaler: signaler,
		gatherer: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}, nil
}

// Hub returns the session hub for shutdown coordination.
func (s *Server) Hub() *Hub { return s.hub }

// Router returns the chat router.
func (s *Server) Router() *relay.Router { return s.router }

// Signaler returns the signaling relay.
func (s *Server) Signaler() *relay.Signaler { return s.signaler }

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// health check, chat and signaling WebSocket endpoints, and Prometheus metrics.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc(chatEndpoint, s.ChatHandler)
	mux.HandleFunc(signalEndpoint, s.SignalHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ChatHandler upgrades the request and attaches the connection to the
// authenticated chat router.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, chatEndpoint, s.router)
}

// SignalHandler upgrades the request and attaches the connection to the
// anonymous signaling relay.
func (s *Server) SignalHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, signalEndpoint, s.signaler)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, endpoint string, handler FrameHandler) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.metrics.recordUpgradeError(endpoint)
		s.log.Info("WebSocket upgrade failed", zap.String("endpoint", endpoint), zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, handler, r.RemoteAddr)
	if err := s.hub.Register(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relay server is running")
}
