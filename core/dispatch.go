package core

import (
	"context"
	"fmt"

	"pkt.systems/burrow/schema"
)

// Dispatch runs a typed command against svc.
func Dispatch(ctx context.Context, svc Service, cmd schema.Command) (schema.CommandResult, error) {
	if cmd == nil {
		return schema.CommandResult{}, schema.ErrUnknownCommand
	}
	result := schema.CommandResult{Command: cmd.Name()}
	switch c := cmd.(type) {
	case schema.VisitCommand:
		resp, err := svc.Visit(ctx, c.VisitRequest)
		if err != nil {
			return result, err
		}
		result.Handled = &resp.Handled
		result.Tab = resp.Tab
	case schema.CreateTabCommand:
		resp, err := svc.CreateTab(ctx, c.CreateTabRequest)
		if err != nil {
			return result, err
		}
		result.Tab = resp.Tab.ID
		result.Window = resp.Tab.Window
	case schema.DestroyTabCommand:
		resp, err := svc.DestroyTab(ctx, c.DestroyTabRequest)
		if err != nil {
			return result, err
		}
		result.Tab = resp.Tab.ID
		result.Window = resp.Tab.Window
	case schema.SelectTabCommand:
		resp, err := svc.SelectTab(ctx, c.SelectTabRequest)
		if err != nil {
			return result, err
		}
		result.Window = resp.Window.ID
		result.Tab = resp.Window.Selected
	case schema.NavigateTabCommand:
		if _, err := svc.NavigateTab(ctx, c.NavigateTabRequest); err != nil {
			return result, err
		}
		result.Tab = c.Tab
	case schema.SnapshotCommand:
		state := svc.Snapshot(ctx)
		result.State = &state
	case schema.OpenURLCommand:
		resp, err := svc.OpenURL(ctx, c.OpenURLRequest)
		if err != nil {
			return result, err
		}
		result.Handled = &resp.Handled
		result.Window = resp.Window
		result.Tab = resp.Tab
	default:
		return schema.CommandResult{}, fmt.Errorf("%w: %s", schema.ErrUnknownCommand, cmd.Name())
	}
	return result, nil
}
