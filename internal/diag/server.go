package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kaiwa/internal/metrics"
	"github.com/hitoshi/kaiwa/internal/model"
	"github.com/hitoshi/kaiwa/internal/state"
)

// shutdownTimeout はGraceful Shutdownの待機上限。
const shutdownTimeout = 5 * time.Second

// stateSnapshot は/stateエンドポイントが返すJSON。
// アクセストークンなどの秘匿値は含めない。
type stateSnapshot struct {
	Initialized   bool                `json:"initialized"`
	Authenticated bool                `json:"authenticated"`
	UserID        string              `json:"userId,omitempty"`
	HomeServer    string              `json:"homeServer,omitempty"`
	ThemeMode     model.ThemeMode     `json:"themeMode"`
	ResolvedTheme model.ResolvedTheme `json:"resolvedTheme"`
	SyncToken     string              `json:"syncToken,omitempty"`
}

// Server はローカル診断サーバー。ループバックアドレスにのみバインドする想定。
type Server struct {
	logger *slog.Logger
	auth   *state.AuthState
	theme  *state.ThemeState
	srv    *http.Server
}

// NewServer は診断サーバーを生成する。
func NewServer(addr string, logger *slog.Logger, gatherer prometheus.Gatherer, auth *state.AuthState, theme *state.ThemeState) *Server {
	s := &Server{logger: logger, auth: auth, theme: theme}

	r := chi.NewRouter()
	r.Use(newRecoveryMiddleware(logger))
	r.Use(newLoggingMiddleware(logger))

	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Handle("/metrics", metrics.Handler(gatherer))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start は診断サーバーの待ち受けを開始する。ブロックしない。
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("診断サーバーが異常終了しました", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("診断サーバーを開始しました", slog.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown は診断サーバーを停止する。
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Handler はルーティング済みハンドラーを返す。テスト用。
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := stateSnapshot{
		Initialized:   s.auth.IsInitialized(),
		Authenticated: s.auth.IsAuthenticated(),
		ThemeMode:     s.theme.Mode(),
		ResolvedTheme: s.theme.Resolved(),
	}
	if session := s.auth.Session(); session != nil {
		snap.UserID = session.UserID
		snap.HomeServer = session.HomeServer
	}
	if handle := s.auth.Client(); handle != nil && handle.Syncer != nil {
		snap.SyncToken = handle.Syncer.NextBatch()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("状態スナップショットのエンコードに失敗しました", slog.String("error", err.Error()))
	}
}
