package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/burrow"
	"pkt.systems/burrow/httpapi"
	"pkt.systems/burrow/internal/appconfig"
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/protocol/gopher"
	"pkt.systems/burrow/internal/protocol/web"
	"pkt.systems/burrow/internal/version"
	"pkt.systems/burrow/schema"
	"pkt.systems/burrow/sshserver"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var disableAuditTrails bool
	var noPersist bool
	var sshAddr string
	var noSSH bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the browser core and its presentation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if sshAddr != "" {
				cfg.SSH.Enabled = true
				cfg.SSH.Addr = sshAddr
			}
			if noSSH {
				cfg.SSH.Enabled = false
			}
			opts := []burrow.ServerOption{burrow.WithHTTP()}
			if cfg.SSH.Enabled {
				opts = append(opts, burrow.WithSSH())
			}
			if !noPersist {
				opts = append(opts, burrow.WithPersistence())
			}
			srv, err := burrow.New(toServerConfig(cfg), burrow.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			logger.Info("serve ready", "addr", srv.Addr(), "ssh_addr", srv.SSHAddr(), "version", version.Current())
			waitErr := make(chan error, 1)
			go func() { waitErr <- srv.Wait() }()
			select {
			case err := <-waitErr:
				return err
			case <-cmd.Context().Done():
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit logging of actions")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "do not write state to state_dir")
	cmd.Flags().StringVar(&sshAddr, "ssh-addr", "", "enable the SSH console on this address")
	cmd.Flags().BoolVar(&noSSH, "no-ssh", false, "disable the SSH console even if configured")
	return cmd
}

func toServerConfig(cfg appconfig.Config) burrow.ServerConfig {
	userAgent := cfg.Protocols.Web.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return burrow.ServerConfig{
		Service: cfg.ServiceConfig(),
		Fetch:   toFetchConfig(cfg),
		Protocols: burrow.ProtocolsConfig{
			Gopher:       cfg.Protocols.Gopher.Enabled,
			GopherConfig: gopher.Config{DialTimeout: cfg.GopherDialTimeout()},
			Web:          cfg.Protocols.Web.Enabled,
			WebConfig:    web.Config{Timeout: cfg.FetchTimeout(), UserAgent: userAgent},
		},
		HTTP: httpapi.Config{
			Addr:       cfg.HTTP.Addr,
			HubHistory: cfg.HTTP.HubHistory,
			QueueDepth: cfg.HTTP.QueueDepth,
		},
		SSH: sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			QueueDepth:         cfg.HTTP.QueueDepth,
		},
		SSHWindow:           schema.WindowID(cfg.SSH.Window),
		StateDir:            cfg.StateDir,
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	}
}

func toFetchConfig(cfg appconfig.Config) fetch.Config {
	return fetch.Config{
		Timeout:     cfg.FetchTimeout(),
		MaxBytes:    cfg.Fetch.MaxBytes,
		RatePerHost: cfg.Fetch.RatePerHost,
		Burst:       cfg.Fetch.Burst,
	}
}
