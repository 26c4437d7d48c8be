package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"pkt.systems/burrow/internal/appconfig"
	"pkt.systems/burrow/internal/persist"
	"pkt.systems/burrow/internal/version"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// apiClient talks to a running serve process.
type apiClient struct {
	rc *resty.Client
}

func newAPIClient(server string) *apiClient {
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(10*time.Second).
		SetHeader("User-Agent", version.UserAgent())
	return &apiClient{rc: rc}
}

func (c *apiClient) open(rawURL string, newTab bool) (schema.CommandResult, error) {
	var result schema.CommandResult
	var apiErr struct {
		Error string `json:"error"`
	}
	resp, err := c.rc.R().
		SetBody(map[string]any{"url": rawURL, "new_tab": newTab}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/open")
	if err != nil {
		return schema.CommandResult{}, err
	}
	if resp.IsError() {
		return schema.CommandResult{}, fmt.Errorf("open failed: %s: %s", resp.Status(), apiErr.Error)
	}
	return result, nil
}

func (c *apiClient) state() (schema.State, error) {
	var state schema.State
	resp, err := c.rc.R().SetResult(&state).Get("/api/state")
	if err != nil {
		return schema.State{}, err
	}
	if resp.IsError() {
		return schema.State{}, fmt.Errorf("state failed: %s", resp.Status())
	}
	return state, nil
}

func serverFlagDefault(cfgPath string) (string, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return "", err
	}
	return cfg.HTTP.Addr, nil
}

func newOpenCmd() *cobra.Command {
	var cfgPath string
	var server string
	var newTab bool
	cmd := &cobra.Command{
		Use:   "open <url>",
		Short: "Open a URL in a running browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				addr, err := serverFlagDefault(cfgPath)
				if err != nil {
					return err
				}
				server = addr
			}
			result, err := newAPIClient(server).open(args[0], newTab)
			if err != nil {
				return err
			}
			if result.Handled != nil && !*result.Handled {
				pslog.Ctx(cmd.Context()).Info("open not handled", "url", args[0])
				return errors.New("url scheme is not handled by this browser")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.Window, result.Tab)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&server, "server", "", "address of the running server (default http.addr)")
	cmd.Flags().BoolVar(&newTab, "new-tab", false, "always open a new tab")
	return cmd
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect navigation state",
	}
	cmd.AddCommand(newStateShowCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	var cfgPath string
	var server string
	var saved bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var state schema.State
			if saved {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				store, err := persist.NewStoreWithLogger(cfg.StateDir, pslog.Ctx(cmd.Context()))
				if err != nil {
					return err
				}
				snapshot, ok, err := store.Load()
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no saved state in %s", cfg.StateDir)
				}
				state = snapshot.State
			} else {
				if server == "" {
					addr, err := serverFlagDefault(cfgPath)
					if err != nil {
						return err
					}
					server = addr
				}
				var err error
				state, err = newAPIClient(server).state()
				if err != nil {
					return err
				}
			}
			return writeIndented(cmd.OutOrStdout(), state)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&server, "server", "", "address of the running server (default http.addr)")
	cmd.Flags().BoolVar(&saved, "saved", false, "read the last saved state from state_dir instead")
	return cmd
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
