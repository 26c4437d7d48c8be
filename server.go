package burrow

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/burrow/core"
	"pkt.systems/burrow/httpapi"
	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/internal/persist"
	"pkt.systems/burrow/internal/protocol"
	"pkt.systems/burrow/internal/protocol/gopher"
	"pkt.systems/burrow/internal/protocol/web"
	"pkt.systems/burrow/schema"
	"pkt.systems/burrow/sshserver"
	"pkt.systems/pslog"
)

// Server composes the navigation core with its transports.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Addr is the HTTP listen address once started.
	Addr() string
	// SSHAddr is the SSH console listen address once started.
	SSHAddr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service             schema.ServiceConfig
	Fetch               fetch.Config
	Protocols           ProtocolsConfig
	HTTP                httpapi.Config
	SSH                 sshserver.Config
	SSHWindow           schema.WindowID
	StateDir            string
	DisableAuditLogging bool
}

// ProtocolsConfig selects the registered capabilities.
type ProtocolsConfig struct {
	Gopher       bool
	GopherConfig gopher.Config
	Web          bool
	WebConfig    web.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Logger  pslog.Logger
	Metrics *metrics.Metrics
	// Capabilities are registered in addition to the configured protocols.
	Capabilities []protocol.Capability
	// Listener replaces listening on HTTP.Addr.
	Listener net.Listener
	// SSHListener replaces listening on SSH.Addr.
	SSHListener net.Listener
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP    bool
	enableSSH     bool
	enablePersist bool
}

// WithHTTP enables the presentation transport.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH console.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// WithPersistence writes the latest state to StateDir.
func WithPersistence() ServerOption {
	return func(o *serverOptions) { o.enablePersist = true }
}

// Engine is the navigation core wired to its fetch pipeline, without any
// transport.
type Engine struct {
	Store    *core.Store
	Service  core.Service
	Handler  *command.Handler
	Fetcher  *fetch.Coordinator
	Registry *protocol.Registry
	Metrics  *metrics.Metrics
}

// NewRegistry builds the protocol registry from config.
func NewRegistry(cfg ProtocolsConfig, extra ...protocol.Capability) (*protocol.Registry, error) {
	reg, err := protocol.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Gopher {
		if err := reg.Register(gopher.New(cfg.GopherConfig)); err != nil {
			return nil, err
		}
	}
	if cfg.Web {
		for _, c := range web.New(cfg.WebConfig) {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range extra {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if len(reg.Schemes()) == 0 {
		return nil, errors.New("no protocols registered")
	}
	return reg, nil
}

// NewEngine wires store, fetch coordinator, service and action handler.
func NewEngine(cfg ServerConfig, deps ServerDeps) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry(cfg.Protocols, deps.Capabilities...)
	if err != nil {
		return nil, err
	}
	store := core.NewStore(core.StoreDeps{Logger: logger, Metrics: deps.Metrics})
	coordinator := fetch.New(cfg.Fetch, fetch.Deps{
		Resolver: reg,
		Writer:   store,
		Logger:   logger,
		Metrics:  deps.Metrics,
	})
	service, err := core.NewService(normalized, core.ServiceDeps{
		Store:    store,
		Fetcher:  coordinator,
		Resolver: reg,
		Logger:   logger,
	})
	if err != nil {
		coordinator.Close()
		return nil, err
	}
	return &Engine{
		Store:    store,
		Service:  service,
		Handler:  command.NewHandler(service, command.HandlerConfig{DisableAuditLogging: cfg.DisableAuditLogging}),
		Fetcher:  coordinator,
		Registry: reg,
		Metrics:  deps.Metrics,
	}, nil
}

// Close cancels every fetch in flight.
func (e *Engine) Close() {
	e.Fetcher.Close()
}

// New constructs a composable burrow server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH && !options.enablePersist {
		return nil, errors.New("no services enabled")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	engine, err := NewEngine(cfg, deps)
	if err != nil {
		return nil, err
	}

	srv := &compositeServer{cfg: cfg, options: options, engine: engine, listener: deps.Listener, sshListener: deps.SSHListener}
	if options.enableHTTP {
		srv.hub = httpapi.NewHub(cfg.HTTP.HubHistory, deps.Logger)
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, engine.Store, engine.Handler, srv.hub, deps.Metrics)
	}
	if options.enableSSH {
		srv.sshSrv = &sshserver.Server{
			Config:  cfg.SSH,
			Backend: engine.Store,
			Handler: engine.Handler,
			Window:  cfg.SSHWindow,
		}
	}
	if options.enablePersist {
		store, err := persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
		if err != nil {
			engine.Close()
			return nil, err
		}
		srv.recorder = persist.NewRecorder(store)
	}
	return srv, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	engine   *Engine
	hub      *httpapi.Hub
	httpSrv  *httpapi.Server
	sshSrv   *sshserver.Server
	recorder *persist.Recorder
	listener net.Listener
	logger   pslog.Logger

	sshListener net.Listener

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	wg      sync.WaitGroup
	unsubs  []func()
	addr    string
	sshAddr string
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	ln := s.listener
	if s.options.enableHTTP && ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.cfg.HTTP.Addr)
		if err != nil {
			pslog.Ctx(ctx).Error("server listen failed", "addr", s.cfg.HTTP.Addr, "err", err)
			return err
		}
	}
	sshLn := s.sshListener
	if s.options.enableSSH && sshLn == nil {
		var err error
		sshLn, err = net.Listen("tcp", s.cfg.SSH.Addr)
		if err != nil {
			pslog.Ctx(ctx).Error("server listen failed", "addr", s.cfg.SSH.Addr, "err", err)
			if ln != nil && ln != s.listener {
				_ = ln.Close()
			}
			return err
		}
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 3)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)

	log := s.logger
	if s.hub != nil {
		s.unsubs = append(s.unsubs, s.engine.Store.Subscribe(s.hub))
	}
	if s.recorder != nil {
		s.unsubs = append(s.unsubs, s.engine.Store.Subscribe(s.recorder))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.recorder.Run(s.ctx); err != nil {
				log.Warn("state recorder final save failed", "err", err)
			}
		}()
	}
	if s.httpSrv != nil {
		s.addr = ln.Addr().String()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := httpapi.Serve(s.ctx, ln, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.sshSrv != nil {
		s.sshSrv.Listener = sshLn
		s.sshAddr = sshLn.Addr().String()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"persist", s.options.enablePersist,
		"http_addr", s.addr,
		"ssh_addr", s.sshAddr,
		"state_dir", s.cfg.StateDir,
		"schemes", s.engine.Registry.Schemes(),
	)
	return nil
}

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *compositeServer) SSHAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sshAddr
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	s.engine.Close()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
	}
	for _, unsub := range unsubs {
		unsub()
	}
	log.Info("server stopped")
	return nil
}
