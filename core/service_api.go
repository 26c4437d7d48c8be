package core

import (
	"context"

	"pkt.systems/burrow/schema"
)

// Service is the transport-agnostic navigation API. Every method that
// changes state is one mutation of the store.
type Service interface {
	Visit(ctx context.Context, req schema.VisitRequest) (schema.VisitResponse, error)
	CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error)
	DestroyTab(ctx context.Context, req schema.DestroyTabRequest) (schema.DestroyTabResponse, error)
	SelectTab(ctx context.Context, req schema.SelectTabRequest) (schema.SelectTabResponse, error)
	NavigateTab(ctx context.Context, req schema.NavigateTabRequest) (schema.NavigateTabResponse, error)
	Snapshot(ctx context.Context) schema.State
	OpenURL(ctx context.Context, req schema.OpenURLRequest) (schema.OpenURLResponse, error)
}
