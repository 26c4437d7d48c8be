package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/internal/protocol"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// service implements the navigation model on top of the store.
type service struct {
	cfg      schema.ServiceConfig
	store    *Store
	fetcher  Fetcher
	resolver protocol.Resolver
	logger   pslog.Logger

	// Guarded by the store's mutation lock.
	gens       map[schema.TabID]uint64
	lastActive schema.WindowID
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store := deps.Store
	if store == nil {
		store = NewStore(StoreDeps{Logger: logger})
	}
	return &service{
		cfg:      normalized,
		store:    store,
		fetcher:  deps.Fetcher,
		resolver: deps.Resolver,
		logger:   logger,
		gens:     make(map[schema.TabID]uint64),
	}, nil
}

func (s *service) Visit(ctx context.Context, req schema.VisitRequest) (schema.VisitResponse, error) {
	if ctx == nil {
		return schema.VisitResponse{}, errors.New("missing context")
	}
	rawURL, err := normalizeURL(req.URL)
	if err != nil {
		return schema.VisitResponse{}, err
	}
	mode, err := schema.NormalizeVisitMode(string(req.Mode))
	if err != nil {
		return schema.VisitResponse{}, err
	}
	log := logx.WithURL(logx.WithTab(ctx, req.At), rawURL)
	if !s.handles(rawURL) {
		log.Debug("service visit unhandled", "mode", mode)
		return schema.VisitResponse{Handled: false}, nil
	}

	var target schema.TabID
	_, err = s.store.Mutate(ctx, string(schema.CommandVisit), func(tx *Tx) error {
		st := tx.State()
		switch mode {
		case schema.VisitPush, schema.VisitReplace:
			tabID := req.At
			if tabID == "" {
				tabID = st.Windows[s.cfg.DefaultWindow].Selected
			}
			if tabID == "" {
				t := openTab(st, s.cfg.DefaultWindow, rawURL, true)
				s.touchWindow(tx, t.Window)
				target = t.ID
				return s.load(tx, t.ID, rawURL)
			}
			t, ok := st.Tabs[tabID]
			if !ok {
				return schema.ErrTabNotFound
			}
			if mode == schema.VisitPush {
				pushLocation(&t, rawURL)
			} else {
				replaceLocation(&t, rawURL)
			}
			st.Tabs[tabID] = t
			target = tabID
		default:
			windowID := s.cfg.DefaultWindow
			if req.At != "" {
				at, ok := st.Tabs[req.At]
				if !ok {
					return schema.ErrTabNotFound
				}
				windowID = at.Window
			}
			t := openTab(st, windowID, rawURL, mode == schema.VisitNewTab)
			s.touchWindow(tx, windowID)
			target = t.ID
		}
		return s.load(tx, target, rawURL)
	})
	if err != nil {
		s.logRejected(log, "service visit", err)
		return schema.VisitResponse{}, err
	}
	log.Debug("service visit", "mode", mode, "target", target)
	return schema.VisitResponse{Handled: true, Tab: target}, nil
}

func (s *service) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error) {
	if ctx == nil {
		return schema.CreateTabResponse{}, errors.New("missing context")
	}
	windowID := req.Window
	if strings.TrimSpace(string(windowID)) == "" {
		windowID = s.cfg.DefaultWindow
	}
	if err := schema.ValidateWindowID(windowID); err != nil {
		return schema.CreateTabResponse{}, err
	}
	target := req.URL
	if strings.TrimSpace(target) == "" {
		target = s.cfg.StartURL
	}
	rawURL, err := normalizeURL(target)
	if err != nil {
		return schema.CreateTabResponse{}, err
	}
	log := logx.WithURL(logx.WithWindow(ctx, windowID), rawURL)
	if !s.handles(rawURL) {
		log.Debug("service tab create rejected", "err", schema.ErrUnhandledScheme)
		return schema.CreateTabResponse{}, fmt.Errorf("%w: %s", schema.ErrUnhandledScheme, rawURL)
	}

	var created schema.Tab
	_, err = s.store.Mutate(ctx, string(schema.CommandCreateTab), func(tx *Tx) error {
		created = openTab(tx.State(), windowID, rawURL, req.Select)
		s.touchWindow(tx, windowID)
		return s.load(tx, created.ID, rawURL)
	})
	if err != nil {
		s.logRejected(log, "service tab create", err)
		return schema.CreateTabResponse{}, err
	}
	log.Info("service tab create", "tab", created.ID, "select", req.Select)
	return schema.CreateTabResponse{Tab: created.Clone()}, nil
}

func (s *service) DestroyTab(ctx context.Context, req schema.DestroyTabRequest) (schema.DestroyTabResponse, error) {
	if ctx == nil {
		return schema.DestroyTabResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.Tab)
	var removed schema.Tab
	_, err := s.store.Mutate(ctx, string(schema.CommandDestroyTab), func(tx *Tx) error {
		t, ok := closeTab(tx.State(), req.Tab)
		if !ok {
			return schema.ErrTabNotFound
		}
		removed = t
		tx.After(func() {
			delete(s.gens, t.ID)
			if s.fetcher != nil {
				s.fetcher.ReleaseTab(t.ID)
			}
		})
		return nil
	})
	if err != nil {
		s.logRejected(log, "service tab destroy", err)
		return schema.DestroyTabResponse{}, err
	}
	log.Info("service tab destroy", "window", removed.Window)
	return schema.DestroyTabResponse{Tab: removed}, nil
}

func (s *service) SelectTab(ctx context.Context, req schema.SelectTabRequest) (schema.SelectTabResponse, error) {
	if ctx == nil {
		return schema.SelectTabResponse{}, errors.New("missing context")
	}
	log := logx.WithWindowTab(ctx, req.Window, req.Tab)
	var window schema.Window
	_, err := s.store.Mutate(ctx, string(schema.CommandSelectTab), func(tx *Tx) error {
		st := tx.State()
		w, ok := st.Windows[req.Window]
		if !ok {
			return schema.ErrWindowNotFound
		}
		if w.IndexOf(req.Tab) >= 0 {
			w.Selected = req.Tab
			st.Windows[req.Window] = w
			s.touchWindow(tx, req.Window)
		}
		window = w.Clone()
		return nil
	})
	if err != nil {
		s.logRejected(log, "service tab select", err)
		return schema.SelectTabResponse{}, err
	}
	log.Debug("service tab select", "selected", window.Selected)
	return schema.SelectTabResponse{Window: window}, nil
}

func (s *service) NavigateTab(ctx context.Context, req schema.NavigateTabRequest) (schema.NavigateTabResponse, error) {
	if ctx == nil {
		return schema.NavigateTabResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.Tab)
	var loc schema.Location
	_, err := s.store.Mutate(ctx, string(schema.CommandNavigateTab), func(tx *Tx) error {
		st := tx.State()
		t, ok := st.Tabs[req.Tab]
		if !ok {
			return schema.ErrTabNotFound
		}
		next, err := moveCursor(&t, req.Index)
		if err != nil {
			return err
		}
		st.Tabs[req.Tab] = t
		loc = next
		return s.load(tx, req.Tab, next.URL)
	})
	if err != nil {
		s.logRejected(log, "service tab navigate", err, "index", req.Index)
		return schema.NavigateTabResponse{}, err
	}
	logx.WithURL(log, loc.URL).Debug("service tab navigate", "index", req.Index)
	return schema.NavigateTabResponse{Location: loc}, nil
}

func (s *service) Snapshot(ctx context.Context) schema.State {
	return s.store.Snapshot()
}

func (s *service) OpenURL(ctx context.Context, req schema.OpenURLRequest) (schema.OpenURLResponse, error) {
	if ctx == nil {
		return schema.OpenURLResponse{}, errors.New("missing context")
	}
	rawURL, err := normalizeURL(req.URL)
	if err != nil {
		return schema.OpenURLResponse{}, err
	}
	log := logx.WithURL(logx.Ctx(ctx), rawURL)
	if !s.handles(rawURL) {
		log.Debug("service open url unhandled")
		return schema.OpenURLResponse{Handled: false}, nil
	}
	var resp schema.OpenURLResponse
	_, err = s.store.Mutate(ctx, string(schema.CommandOpenURL), func(tx *Tx) error {
		st := tx.State()
		windowID := s.openURLWindow()
		selected := st.Windows[windowID].Selected
		if !req.NewTab && selected != "" {
			t := st.Tabs[selected]
			pushLocation(&t, rawURL)
			st.Tabs[selected] = t
			resp = schema.OpenURLResponse{Handled: true, Window: windowID, Tab: selected}
		} else {
			t := openTab(st, windowID, rawURL, true)
			s.touchWindow(tx, windowID)
			resp = schema.OpenURLResponse{Handled: true, Window: windowID, Tab: t.ID}
		}
		return s.load(tx, resp.Tab, rawURL)
	})
	if err != nil {
		s.logRejected(log, "service open url", err)
		return schema.OpenURLResponse{}, err
	}
	log.Info("service open url", "window", resp.Window, "tab", resp.Tab, "new_tab", req.NewTab, "policy", s.cfg.OpenURLPolicy)
	return resp, nil
}

// load marks rawURL pending and requests it for the tab's next position. The
// previous position's claim is dropped once the mutation is published; the
// new claim is taken first so a reload keeps a shared fetch alive.
func (s *service) load(tx *Tx, tabID schema.TabID, rawURL string) error {
	tx.Cache().MarkPending(rawURL)
	if s.fetcher == nil {
		return nil
	}
	prev := fetch.Owner{Tab: tabID, Gen: s.gens[tabID]}
	next := fetch.Owner{Tab: tabID, Gen: prev.Gen + 1}
	if _, err := s.fetcher.Request(rawURL, next); err != nil {
		return err
	}
	s.gens[tabID] = next.Gen
	if prev.Gen > 0 {
		tx.After(func() { s.fetcher.Release(prev) })
	}
	return nil
}

func (s *service) touchWindow(tx *Tx, windowID schema.WindowID) {
	tx.After(func() { s.lastActive = windowID })
}

// openURLWindow picks the target window for an external open. Must be called
// inside a mutation.
func (s *service) openURLWindow() schema.WindowID {
	if s.cfg.OpenURLPolicy == schema.OpenURLLastActive && s.lastActive != "" {
		return s.lastActive
	}
	return s.cfg.OpenURLWindow
}

func (s *service) handles(rawURL string) bool {
	if s.resolver == nil {
		return false
	}
	_, ok := s.resolver.Resolve(rawURL)
	return ok
}

func (s *service) logRejected(log pslog.Logger, msg string, err error, kv ...any) {
	kv = append(kv, "err", err)
	if schema.IsNavigationError(err) {
		log.Debug(msg+" rejected", kv...)
		return
	}
	log.Warn(msg+" failed", kv...)
}

func normalizeURL(raw string) (string, error) {
	if _, err := schema.ParseURL(raw); err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
