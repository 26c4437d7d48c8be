package core

import (
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/protocol"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// Fetcher issues and releases resource fetches on behalf of tabs.
type Fetcher interface {
	Request(rawURL string, owner fetch.Owner) (*fetch.Handle, error)
	Release(owner fetch.Owner)
	ReleaseTab(tab schema.TabID)
}

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Store    *Store
	Fetcher  Fetcher
	Resolver protocol.Resolver
	Logger   pslog.Logger
}
