package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

const (
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 1 << 10
)

type device interface {
	ID() string
	Name() string
	State() homie.State
	Nodes() []*homie.Node
	SetAlert(alert bool)
}

type server struct {
	device  device
	metrics http.Handler
	logger  *zap.Logger
}

// New builds the status surface for dev. metrics may be nil, in which case
// /metrics is not served.
func New(dev device, metrics http.Handler) *server {
	return &server{device: dev, metrics: metrics, logger: zap.L()}
}

func (s *server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Route("/api/v1/device", func(r chi.Router) {
		r.Get("/", s.handleGetDevice)
		r.Put("/alert", s.handleSetAlert)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts the listener down.
func (s *server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	switch s.device.State() {
	case homie.StateReady, homie.StateAlert:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(s.device.State().String()))
	}
}

func (s *server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newDeviceResponse(s.device))
}

func (s *server) handleSetAlert(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[AlertRequest](r)
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	if req.Alert == nil {
		handleError(w, http.StatusBadRequest, errors.New("alert field is required"))
		return
	}

	s.device.SetAlert(*req.Alert)
	s.logger.Info("alert requested", zap.Bool("alert", *req.Alert))
	writeJSON(w, http.StatusOK, StateResponse{State: s.device.State().String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
