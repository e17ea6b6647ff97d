package monitor

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
	"github.com/banshee-data/sample.return/internal/rover/pipeline"
	"github.com/banshee-data/sample.return/internal/timeutil"
)

// HealthService is the gRPC health service name that tracks the
// controller. The empty service name mirrors it.
const HealthService = "rover.Controller"

// Source is the live rover state. Implemented by *pipeline.Pipeline.
type Source interface {
	View() pipeline.View
	Map() *l4grid.WorldMap
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Address        string // HTTP listen address
	GRPCAddress    string // health service listen address; empty disables gRPC
	Source         Source
	Gatherer       prometheus.Gatherer // nil selects the default registry
	HealthInterval time.Duration       // how often health follows the controller mode
	Clock          timeutil.Clock
}

// Server is the rover's monitoring surface.
type Server struct {
	cfg    ServerConfig
	mux    *http.ServeMux
	server *http.Server
	health *health.Server
}

// NewServer creates a server with the monitoring routes registered. More
// routes may be added to Mux before Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 500 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		health: health.NewServer(),
	}
	s.setupRoutes()
	s.server = &http.Server{Addr: cfg.Address, Handler: s.mux}
	s.SyncHealth()
	return s
}

// Mux returns the server's route table.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Health returns the gRPC health service.
func (s *Server) Health() *health.Server { return s.health }

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/map.png", s.handleMapPNG)
	s.mux.HandleFunc("/debug/votes", s.handleVoteHeatmap)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
}

// SyncHealth sets the health status from the controller mode:
// NOT_SERVING in Error mode, SERVING otherwise.
func (s *Server) SyncHealth() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.cfg.Source == nil || s.cfg.Source.View().Controller.Mode == l5decision.ModeError {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.health.SetServingStatus("", status)
}

// Start serves HTTP, and gRPC health when configured, until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() {
		log.Printf("Starting HTTP server on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var gs *grpc.Server
	if s.cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddress)
		if err != nil {
			_ = s.server.Close()
			return err
		}
		gs = grpc.NewServer()
		healthpb.RegisterHealthServer(gs, s.health)
		go func() {
			log.Printf("Starting gRPC health service on %s", lis.Addr())
			if err := gs.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	ticker := s.cfg.Clock.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errc:
			runErr = err
			break loop
		case <-ticker.C():
			s.SyncHealth()
		}
	}

	log.Println("shutting down monitor...")
	s.health.Shutdown()
	if gs != nil {
		gs.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("monitor stopped")
	return runErr
}
