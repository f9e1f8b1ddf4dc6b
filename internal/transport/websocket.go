// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "wtsynth/internal/log"
	"wtsynth/internal/metrics"
)

const (
	broadcastQueue = 256
	writeTimeout   = time.Second
)

// WebSocketServer serves the spectrum feed on /ws together with /healthz,
// /metrics and, when a Controller is given, the /api control routes.
type WebSocketServer struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]string // Client ID for logs
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	router    chi.Router
	server    *http.Server
	control   Controller
}

// NewWebSocketServer creates the server and starts its broadcast loop.
// Call ListenAndServe to accept connections, or mount Handler elsewhere.
func NewWebSocketServer(addr string, control Controller) *WebSocketServer {
	s := &WebSocketServer{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualizers are served from anywhere
			},
		},
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
		control:   control,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.handleBroadcasts()
	return s
}

func (s *WebSocketServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	if s.control != nil {
		r.Route("/api", func(r chi.Router) {
			api := &controlAPI{control: s.control}
			api.mount(r)
		})
	}
	return r
}

// Handler returns the router, e.g. for httptest.
func (s *WebSocketServer) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *WebSocketServer) Addr() string { return s.addr }

// ListenAndServe blocks until the server is shut down. A clean shutdown
// returns nil.
func (s *WebSocketServer) ListenAndServe() error {
	applog.Infof("WebSocketServer: Listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every client.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketServer: Upgrade error: %v", err)
		return
	}

	// Register client
	id := uuid.New().String()
	s.clientsMu.Lock()
	s.clients[conn] = id
	total := len(s.clients)
	s.clientsMu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
	applog.Infof("WebSocketServer: Client %s connected from %s, total: %d", id, r.RemoteAddr, total)

	// Handle disconnect. Clients never send anything we act on.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(conn)
				return
			}
		}
	}()
}

func (s *WebSocketServer) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	id, ok := s.clients[conn]
	delete(s.clients, conn)
	total := len(s.clients)
	s.clientsMu.Unlock()

	if ok {
		conn.Close()
		metrics.WebSocketClients.Set(float64(total))
		applog.Infof("WebSocketServer: Client %s disconnected, total: %d", id, total)
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// handleBroadcasts sends messages to all connected clients
func (s *WebSocketServer) handleBroadcasts() {
	for {
		select {
		case data := <-s.broadcast:
			s.clientsMu.Lock()
			for client, id := range s.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					applog.Warnf("WebSocketServer: Error sending to client %s: %v", id, err)
					metrics.SpectrumSendErrorsTotal.WithLabelValues("websocket").Inc()
					client.Close()
					delete(s.clients, client)
					metrics.WebSocketClients.Set(float64(len(s.clients)))
				}
			}
			s.clientsMu.Unlock()
		case <-s.done:
			return
		}
	}
}

// Send queues data for broadcast to all connected WebSocket clients. data
// is encoded later on the broadcast goroutine and must not be mutated after
// the call. A full queue drops the message.
func (s *WebSocketServer) Send(data any) error {
	select {
	case <-s.done:
		return errors.New("websocket server closed")
	default:
	}

	select {
	case s.broadcast <- data:
		metrics.SpectrumFramesTotal.WithLabelValues("websocket").Inc()
	default:
		// Channel full, drop message
		applog.Debugf("WebSocketServer: Broadcast queue full, dropping frame")
	}
	return nil
}

// Close stops the broadcast loop and closes all client connections. It
// does not stop the HTTP listener; use Shutdown for that.
func (s *WebSocketServer) Close() error {
	s.closeOnce.Do(func() {
		applog.Infof("WebSocketServer: Closing clients")
		close(s.done)

		s.clientsMu.Lock()
		for client := range s.clients {
			client.Close()
		}
		s.clients = make(map[*websocket.Conn]string)
		s.clientsMu.Unlock()
		metrics.WebSocketClients.Set(0)
	})
	return nil
}

// requestLogger logs each HTTP request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		applog.Debugf("HTTP: %s %s -> %d (%s, id %s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), chimw.GetReqID(r.Context()))
	})
}

// Ensure WebSocketServer satisfies the interface
var _ Transport = (*WebSocketServer)(nil)
