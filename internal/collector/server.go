// Package collector implements the receiving end of the axiosly backend protocol: an HTTP
// service that accepts forwarded records, keeps the most recent ones, and streams them to
// live subscribers over websocket.
package collector

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jkbrsn/axiosly"
)

const (
	// maxRecordBytes bounds the size of a single POSTed record.
	maxRecordBytes = 4 << 20

	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Config configures a Server.
type Config struct {
	// APIKey is the bearer token clients must present. Empty disables authentication.
	APIKey string
	// Capacity is the number of records kept in memory.
	Capacity int
	Logger   zerolog.Logger
}

// Server is the collector HTTP service.
type Server struct {
	apiKey string
	logger zerolog.Logger

	store    *Store
	hub      *hub
	upgrader websocket.Upgrader
	router   chi.Router
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	s := &Server{
		apiKey: cfg.APIKey,
		logger: cfg.Logger.With().Str("component", "collector").Logger(),
		store:  NewStore(cfg.Capacity),
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.logRequests,
	)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/v1/metrics", s.handleIngest)
		r.Get("/v1/metrics", s.handleList)
		r.Get("/v1/stream", s.handleStream)
	})
	s.router = r

	return s
}

// Handler returns the HTTP handler serving the collector API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the server's record store.
func (s *Server) Store() *Store {
	return s.store
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("collector listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	// Live streams are hijacked connections, Shutdown does not wait for them
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects all live subscribers.
func (s *Server) Close() {
	s.hub.closeAll()
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	var rec axiosly.MetricsRecord
	if err := sonic.Unmarshal(body, &rec); err != nil {
		http.Error(w, "invalid record: "+err.Error(), http.StatusBadRequest)
		return
	}
	if rec.ID == "" || rec.Request.Method == "" || rec.Request.URL == "" {
		http.Error(w, "invalid record: id and request are required", http.StatusBadRequest)
		return
	}

	replaced := s.store.Put(rec)
	if dropped := s.hub.broadcast(body); dropped > 0 {
		s.logger.Warn().Int("subscribers", dropped).Msg("dropped slow stream subscribers")
	}
	s.logger.Debug().
		Str("id", rec.ID).
		Str("outcome", rec.Outcome()).
		Bool("replaced", replaced).
		Msg("record stored")

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	recs := s.store.List()
	if recs == nil {
		recs = []axiosly.MetricsRecord{}
	}
	payload, err := sonic.Marshal(recs)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no record accepted after it is missed
	sub := s.hub.subscribe()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.unsubscribe(sub)
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer s.hub.unsubscribe(sub)

	// Reads only serve to notice the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.ch:
			if !ok {
				closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
				_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && !validBearer(r.Header.Get("Authorization"), s.apiKey) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validBearer(header, key string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}
