// Package sshserver serves a line-mode browser console over SSH. Each
// session follows one window through the replication channel and sends its
// input through the action channel.
package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// Backend is the state source a console follows.
type Backend interface {
	SubscribeWithSnapshot(observer replication.Observer) (schema.State, func())
}

// ActionHandler runs console input.
type ActionHandler interface {
	Handle(ctx context.Context, action command.Action) (schema.CommandResult, error)
	HandleLine(ctx context.Context, input string) (schema.CommandResult, error)
}

// Server exposes the browser core over SSH.
type Server struct {
	Config
	Listener net.Listener
	Backend  Backend
	Handler  ActionHandler
	Window   schema.WindowID
	logger   pslog.Logger
}

type authContextKey string

const fingerprintKey authContextKey = "fingerprint"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Backend == nil || s.Handler == nil {
		return errors.New("ssh console requires a backend and an action handler")
	}
	if s.Prompt == "" {
		s.Prompt = "burrow> "
	}
	if s.Window == "" {
		s.Window = schema.DefaultWindowID
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}

	signer, created, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("ssh host key created", "path", s.HostKeyPath, "fingerprint", ssh.FingerprintSHA256(signer.PublicKey()))
	}
	if strings.TrimSpace(s.AuthorizedKeysPath) == "" {
		return errors.New("ssh authorized keys path is required")
	}
	keys, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
	if err != nil {
		return err
	}
	if keys.Len() == 0 {
		s.logger.Warn("ssh authorized keys empty", "path", s.AuthorizedKeysPath)
	}

	server := &gliderssh.Server{
		Addr:    s.Addr,
		Handler: s.handleSession,
		PublicKeyHandler: func(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
			return s.handlePublicKey(ctx, key, keys)
		},
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			s.logger.Info("ssh listening", "addr", s.Listener.Addr().String())
			errCh <- server.Serve(s.Listener)
			return
		}
		s.logger.Info("ssh listening", "addr", s.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey, keys *AuthorizedKeys) bool {
	fingerprint := ssh.FingerprintSHA256(key)
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", fingerprint)
	if !keys.Contains(key) {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(fingerprintKey, fingerprint)
	log.Info("ssh pubkey accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	if fp, ok := sess.Context().Value(fingerprintKey).(string); ok {
		log = log.With("fingerprint", fp)
	}
	if len(sess.Command()) > 0 {
		log.Info("ssh session rejected", "reason", "exec not supported")
		_, _ = io.WriteString(sess, "burrow: only interactive sessions are supported\n")
		_ = sess.Exit(1)
		return
	}
	ctx := pslog.ContextWithLogger(sess.Context(), log)

	c := newConsole(sess, s.Handler, s.Window, s.Prompt)
	pty, winCh, hasPty := sess.Pty()
	if hasPty {
		c.resize(pty.Window.Width, pty.Window.Height)
		go func() {
			for win := range winCh {
				c.resize(win.Width, win.Height)
			}
		}()
	}
	log.Info("ssh session opened", "pty", hasPty)
	err := c.Run(ctx, s.Backend, s.QueueDepth, func() { _ = sess.Close() })
	if err != nil {
		log.Warn("ssh session ended", "err", err)
	}
	log.Info("ssh session closed")
}
