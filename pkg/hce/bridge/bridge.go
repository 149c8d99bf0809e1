// Zaparoo Echo
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Echo.
//
// Zaparoo Echo is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Echo is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Echo.  If not, see <http://www.gnu.org/licenses/>.

// Package bridge implements host-card emulation through a companion phone
// app. The companion connects over a websocket, announces itself with a
// hello message and then performs emulation on request. Only one companion
// is attached at a time; a new connection replaces the old one.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	Path                = "/hce"
	HealthPath          = "/healthz"
	DefaultAckTimeout   = 5 * time.Second
	DefaultHelloTimeout = 10 * time.Second
	writeTimeout        = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
	// companion connection attempts allowed per second, with burst
	connectRate  = 2
	connectBurst = 5
)

var (
	ErrNoCompanion   = errors.New("no companion connected")
	ErrCompanionGone = errors.New("companion disconnected")
	ErrAckTimeout    = errors.New("timed out waiting for companion")
	ErrRejected      = errors.New("companion rejected request")
)

type Options struct {
	AckTimeout   time.Duration
	HelloTimeout time.Duration
}

// Bridge is a radio.HCEChannel backed by the attached companion.
type Bridge struct {
	current      *companion
	upgrader     websocket.Upgrader
	connects     *rate.Limiter
	ackTimeout   time.Duration
	helloTimeout time.Duration
	mu           syncutil.Mutex
	closed       bool
}

func New(opts Options) *Bridge {
	b := &Bridge{
		ackTimeout:   opts.AckTimeout,
		helloTimeout: opts.HelloTimeout,
		connects:     rate.NewLimiter(rate.Limit(connectRate), connectBurst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if b.ackTimeout <= 0 {
		b.ackTimeout = DefaultAckTimeout
	}
	if b.helloTimeout <= 0 {
		b.helloTimeout = DefaultHelloTimeout
	}
	return b
}

type companion struct {
	conn      *websocket.Conn
	pending   map[string]chan Reply
	done      chan struct{}
	hello     Hello
	closeOnce sync.Once
	mu        syncutil.Mutex
	writeMu   syncutil.Mutex
}

func newCompanion(conn *websocket.Conn, hello Hello) *companion {
	return &companion{
		conn:    conn,
		hello:   hello,
		pending: make(map[string]chan Reply),
		done:    make(chan struct{}),
	}
}

func (c *companion) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *companion) reply(id string, replyErr error) {
	r := Reply{ID: id, OK: replyErr == nil}
	if replyErr != nil {
		r.Error = replyErr.Error()
	}
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("hce bridge: failed to marshal reply")
		return
	}
	if err := c.write(data); err != nil {
		log.Debug().Err(err).Msg("hce bridge: failed to send reply")
	}
}

func (c *companion) register(id string) chan Reply {
	ch := make(chan Reply, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *companion) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *companion) resolve(r Reply) {
	c.mu.Lock()
	ch, ok := c.pending[r.ID]
	delete(c.pending, r.ID)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("id", r.ID).Msg("hce bridge: reply for unknown request")
		return
	}
	ch <- r
}

func (c *companion) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("hce bridge: error closing companion connection")
		}
	})
}

func (c *companion) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("hce bridge: companion read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var r Reply
		if err := json.Unmarshal(data, &r); err != nil || r.ID == "" {
			log.Debug().Msg("hce bridge: ignoring malformed companion message")
			continue
		}
		c.resolve(r)
	}
}

// Router returns the HTTP handler serving the companion endpoint and a
// health check.
func (b *Bridge) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*", "capacitor://*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))
	r.With(b.limitConnects).Get(Path, b.handleCompanion)
	r.Get(HealthPath, b.handleHealth)
	return r
}

func (b *Bridge) limitConnects(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.connects.Allow() {
			log.Warn().Str("remote", r.RemoteAddr).Msg("hce bridge: companion connect rate exceeded")
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bridge) handleHealth(w http.ResponseWriter, _ *http.Request) {
	hello, connected := b.Companion()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(struct {
		Platform  string `json:"platform,omitempty"`
		Companion bool   `json:"companion"`
	}{Platform: hello.Platform, Companion: connected})
	if err != nil {
		log.Debug().Err(err).Msg("hce bridge: failed to write health response")
	}
}

func (b *Bridge) handleCompanion(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("hce bridge: websocket upgrade failed")
		return
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("hce bridge: companion connecting")

	if err := conn.SetReadDeadline(time.Now().Add(b.helloTimeout)); err != nil {
		_ = conn.Close()
		return
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Warn().Err(err).Msg("hce bridge: companion sent no hello")
		_ = conn.Close()
		return
	}

	c := newCompanion(conn, Hello{})
	req, hello, err := parseHello(data)
	if err == nil && !hello.SupportsHCE {
		err = errors.New("companion does not support host card emulation")
	}
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("hce bridge: rejected companion")
		c.reply(req.ID, err)
		c.close()
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		c.close()
		return
	}
	c.hello = hello

	if !b.attach(c) {
		c.reply(req.ID, errors.New("bridge closed"))
		c.close()
		return
	}
	c.reply(req.ID, nil)
	log.Info().
		Str("platform", hello.Platform).
		Str("name", hello.Name).
		Msg("hce bridge: companion attached")

	c.readLoop()

	b.detach(c)
	c.close()
	log.Info().Str("platform", hello.Platform).Msg("hce bridge: companion detached")
}

func (b *Bridge) attach(c *companion) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	old := b.current
	b.current = c
	b.mu.Unlock()

	if old != nil {
		log.Info().Msg("hce bridge: replacing previous companion")
		old.close()
	}
	return true
}

func (b *Bridge) detach(c *companion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == c {
		b.current = nil
	}
}

func (b *Bridge) active() *companion {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Companion returns the hello of the attached companion.
func (b *Bridge) Companion() (Hello, bool) {
	c := b.active()
	if c == nil {
		return Hello{}, false
	}
	return c.hello, true
}

func (b *Bridge) request(ctx context.Context, op, msgType string, payload any) error {
	c := b.active()
	if c == nil {
		return radio.NewError(radio.KindDriverFailure, op, "", ErrNoCompanion)
	}

	id := uuid.NewString()
	data, err := newRequest(id, msgType, payload)
	if err != nil {
		return radio.NewError(radio.KindDriverFailure, op, "", err)
	}

	replies := c.register(id)
	defer c.unregister(id)

	if err := c.write(data); err != nil {
		return radio.NewError(radio.KindDriverFailure, op, "", err)
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()

	select {
	case r := <-replies:
		if !r.OK {
			return radio.NewError(radio.KindDriverFailure, op, r.Error, ErrRejected)
		}
		return nil
	case <-c.done:
		return radio.NewError(radio.KindDriverFailure, op, "", ErrCompanionGone)
	case <-timer.C:
		return radio.NewError(radio.KindDriverFailure, op, "", ErrAckTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// SetApplication sends the NDEF message the companion should serve.
func (b *Bridge) SetApplication(ctx context.Context, message []byte) error {
	log.Debug().Int("bytes", len(message)).Msg("hce bridge: set application")
	return b.request(ctx, "set application", TypeSetApplication, SetApplicationPayload{Message: message})
}

// SetEnabled starts or stops emulation on the companion.
func (b *Bridge) SetEnabled(ctx context.Context, enabled bool) error {
	log.Debug().Bool("enabled", enabled).Msg("hce bridge: set enabled")
	return b.request(ctx, "set enabled", TypeSetEnabled, SetEnabledPayload{Enabled: enabled})
}

// Serve runs the HTTP server until ctx is done.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return b.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (b *Bridge) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           b.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("hce bridge listening")

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("hce bridge server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down hce bridge: %w", err)
	}
	return nil
}

// Close detaches the companion and refuses new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	c := b.current
	b.current = nil
	b.mu.Unlock()
	if c != nil {
		c.close()
	}
}
