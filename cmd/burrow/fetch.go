package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/burrow"
	"pkt.systems/burrow/internal/appconfig"
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/pslog"
)

func newFetchCmd() *cobra.Command {
	var cfgPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one URL through the configured protocols and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			rawURL := args[0]
			serverCfg := toServerConfig(cfg)
			reg, err := burrow.NewRegistry(serverCfg.Protocols)
			if err != nil {
				return err
			}
			writer := fetch.NewCacheWriter(nil)
			coordinator := fetch.New(serverCfg.Fetch, fetch.Deps{Resolver: reg, Writer: writer, Logger: logger})
			defer coordinator.Close()

			handle, err := coordinator.Request(rawURL, fetch.Owner{Tab: "cli", Gen: 1})
			if err != nil {
				return err
			}
			defer handle.Release()
			out, err := handle.Wait(cmd.Context())
			if err != nil {
				return err
			}
			res, _ := writer.Get(rawURL)
			logx.WithURL(logger, rawURL).Debug("fetch done", "status", res.Status, "version", res.Version, "mime", res.MIMEType)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if !out.OK() {
				return fmt.Errorf("fetch %s: %w", rawURL, out.Err)
			}
			_, err = cmd.OutOrStdout().Write(out.Payload)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cached resource as JSON")
	return cmd
}
