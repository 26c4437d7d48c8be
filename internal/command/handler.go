package command

import (
	"context"
	"errors"

	"pkt.systems/burrow/core"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/schema"
)

// HandlerConfig configures action handling.
type HandlerConfig struct {
	DisableAuditLogging bool
}

// Handler decodes actions and dispatches them to the navigation service.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	return &Handler{service: service, cfg: cfg}
}

// Handle runs one action. Rejected navigation is returned to the caller but
// only logged at debug level; it indicates a stale presentation reference.
func (h *Handler) Handle(ctx context.Context, action Action) (schema.CommandResult, error) {
	if ctx == nil {
		return schema.CommandResult{}, errors.New("missing context")
	}
	log := logx.Ctx(ctx).With("action", action.Name, "args", len(action.Args))
	if action.ID != "" {
		log = log.With("action_id", action.ID)
	}
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "action", "command", action.Name, "raw_args", rawArgs(action))
	}
	cmd, err := Decode(action)
	if err != nil {
		log.Warn("command rejected", "err", err)
		return schema.CommandResult{}, err
	}
	result, err := core.Dispatch(ctx, h.service, cmd)
	if err != nil {
		if schema.IsNavigationError(err) {
			log.Debug("command rejected", "err", err)
		} else {
			log.Warn("command failed", "err", err)
		}
		return result, err
	}
	log.Trace("command handled")
	return result, nil
}

// HandleLine parses a text line and runs it.
func (h *Handler) HandleLine(ctx context.Context, input string) (schema.CommandResult, error) {
	action, err := ParseAction(input)
	if err != nil {
		return schema.CommandResult{}, err
	}
	return h.Handle(ctx, action)
}

func rawArgs(action Action) []string {
	out := make([]string, 0, len(action.Args))
	for _, arg := range action.Args {
		out = append(out, string(arg))
	}
	return out
}
