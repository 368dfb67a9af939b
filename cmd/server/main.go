// Command server exposes the SSD simulator over HTTP JSON and gRPC, with
// Prometheus metrics and an optional cron-scheduled image autosave. The
// core stays single-threaded: every operation serializes through one
// mutex around the simulator handle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/sonoasy/ssdsim"
	"github.com/sonoasy/ssdsim/internal/config"
	"github.com/sonoasy/ssdsim/internal/exporter"
	"github.com/sonoasy/ssdsim/internal/ftl"
	"github.com/sonoasy/ssdsim/internal/host"
)

// Flags
var (
	flagConfig   = flag.String("config", "", "YAML config file (optional)")
	flagImage    = flag.String("image", "", "Device image path (overrides config)")
	flagHTTP     = flag.String("http", "", "HTTP listen address (overrides config)")
	flagGRPC     = flag.String("grpc", "", "gRPC listen address (overrides config)")
	flagAutosave = flag.String("autosave", "", "Cron spec for periodic image saves (overrides config)")
	flagVerbose  = flag.Bool("v", false, "Verbose logging")
)

// HTTP / gRPC payload types
type writeRequest struct {
	LBA   int    `json:"lba"`
	Value string `json:"value"` // 0xXXXXXXXX literal
}
type writeResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type readRequest struct {
	LBA int `json:"lba"`
}
type readResponse struct {
	LBA      int    `json:"lba"`
	Value    string `json:"value"`
	Duration string `json:"duration"`
}

type statsRequest struct{}
type statsResponse struct {
	Stats ftl.Stats `json:"stats"`
}

type gcRequest struct{}
type gcResponse struct {
	Victim   int    `json:"victim"`
	Migrated int    `json:"migrated"`
	Erased   bool   `json:"erased"`
	Error    string `json:"error,omitempty"`
}

// gRPC JSON codec (manual service registration, no protobuf)
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// HostServer is the gRPC service surface.
type HostServer interface {
	Write(context.Context, *writeRequest) (*writeResponse, error)
	Read(context.Context, *readRequest) (*readResponse, error)
	Stats(context.Context, *statsRequest) (*statsResponse, error)
	ForceGC(context.Context, *gcRequest) (*gcResponse, error)
}

func registerHostServer(s *grpc.Server, srv HostServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "ssdsim.Host",
		HandlerType: (*HostServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Write", Handler: _Host_Write_Handler},
			{MethodName: "Read", Handler: _Host_Read_Handler},
			{MethodName: "Stats", Handler: _Host_Stats_Handler},
			{MethodName: "ForceGC", Handler: _Host_ForceGC_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "ssdsim",
	}, srv)
}

func _Host_Write_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(writeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ssdsim.Host/Write"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(HostServer).Write(ctx, req.(*writeRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Host_Read_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(readRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ssdsim.Host/Read"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(HostServer).Read(ctx, req.(*readRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Host_Stats_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(statsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ssdsim.Host/Stats"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(HostServer).Stats(ctx, req.(*statsRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Host_ForceGC_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(gcRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostServer).ForceGC(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ssdsim.Host/ForceGC"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(HostServer).ForceGC(ctx, req.(*gcRequest)) }
	return interceptor(ctx, in, info, handler)
}

// server serializes all simulator access behind one mutex.
type server struct {
	mu  sync.Mutex
	ssd *ssdsim.SSD
}

// lockedStats snapshots under the lock so Prometheus scrapes never race
// host operations.
func (s *server) lockedStats() ftl.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssd.Stats()
}

type statsSourceFunc func() ftl.Stats

func (f statsSourceFunc) Stats() ftl.Stats { return f() }

// HostServer implementation
func (s *server) Write(_ context.Context, req *writeRequest) (*writeResponse, error) {
	start := time.Now()
	s.mu.Lock()
	err := s.ssd.Host().Write(req.LBA, req.Value)
	s.mu.Unlock()
	resp := &writeResponse{OK: err == nil, Duration: time.Since(start).String()}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *server) Read(_ context.Context, req *readRequest) (*readResponse, error) {
	start := time.Now()
	s.mu.Lock()
	v := s.ssd.Host().Read(req.LBA)
	s.mu.Unlock()
	return &readResponse{
		LBA:      req.LBA,
		Value:    host.FormatHexWord(v),
		Duration: time.Since(start).String(),
	}, nil
}

func (s *server) Stats(_ context.Context, _ *statsRequest) (*statsResponse, error) {
	return &statsResponse{Stats: s.lockedStats()}, nil
}

func (s *server) ForceGC(_ context.Context, _ *gcRequest) (*gcResponse, error) {
	s.mu.Lock()
	res, err := s.ssd.ForceGC()
	s.mu.Unlock()
	resp := &gcResponse{}
	if res != nil {
		resp.Victim = res.Victim
		resp.Migrated = res.Migrated
		resp.Erased = res.Erased
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *server) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssd.FTL().Save()
}

// HTTP handlers
func (s *server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Write(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Read(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, &statsResponse{Stats: s.lockedStats()})
}

func (s *server) handleGC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, _ := s.ForceGC(r.Context(), &gcRequest{})
	writeJSON(w, resp)
}

func (s *server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.save(); err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.lockedStats()
	writeJSON(w, map[string]any{
		"ok":     true,
		"time":   time.Now().Format(time.RFC3339),
		"serial": st.Serial,
		"waf":    st.WAF,
		"mapped": st.MappedLBAs,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *flagImage != "" {
		cfg.ImagePath = *flagImage
	}
	if *flagHTTP != "" {
		cfg.HTTPAddr = *flagHTTP
	}
	if *flagGRPC != "" {
		cfg.GRPCAddr = *flagGRPC
	}
	if *flagAutosave != "" {
		cfg.AutosaveCron = *flagAutosave
	}

	ssd, err := ssdsim.Open(cfg)
	if err != nil {
		log.Fatalf("open error: %v", err)
	}
	srv := &server{ssd: ssd}

	// Prometheus registry with the simulator collector.
	reg := prometheus.NewRegistry()
	reg.MustRegister(exporter.NewCollector(statsSourceFunc(srv.lockedStats)))

	// Cron-scheduled autosave keeps long-running sessions durable between
	// shutdowns; the shutdown save below remains the contract.
	var sched *cron.Cron
	if cfg.AutosaveCron != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(cfg.AutosaveCron, func() {
			if err := srv.save(); err != nil {
				log.Printf("autosave error: %v", err)
			} else if *flagVerbose {
				log.Printf("autosave done")
			}
		}); err != nil {
			log.Fatalf("autosave cron %q: %v", cfg.AutosaveCron, err)
		}
		sched.Start()
		log.Printf("autosave scheduled: %s", cfg.AutosaveCron)
	}

	// Register JSON codec for gRPC.
	encoding.RegisterCodec(jsonCodec{})

	// Start gRPC server.
	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		gs = grpc.NewServer()
		registerHostServer(gs, srv)
		go func() {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			log.Printf("gRPC listening on %s", cfg.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	// Shutdown must persist the image even after host-level failures.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("shutting down")
		if sched != nil {
			<-sched.Stop().Done()
		}
		if gs != nil {
			gs.GracefulStop()
		}
		srv.mu.Lock()
		err := srv.ssd.Close()
		srv.mu.Unlock()
		if err != nil {
			log.Printf("shutdown save error: %v", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/write", srv.handleWrite)
	mux.HandleFunc("/api/read", srv.handleRead)
	mux.HandleFunc("/api/stats", srv.handleStats)
	mux.HandleFunc("/api/gc", srv.handleGC)
	mux.HandleFunc("/api/save", srv.handleSave)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("HTTP listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		log.Fatalf("HTTP serve error: %v", err)
	}
}
