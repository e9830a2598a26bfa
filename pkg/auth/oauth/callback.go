// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
)

const (
	// CallbackPath is where the authorization server redirects the browser.
	CallbackPath = "/oauth/callback"

	// DefaultCallbackTimeout bounds the wait for the user to finish signing in.
	DefaultCallbackTimeout = 2 * time.Minute
)

// CallbackResult is what the authorization server sent back.
type CallbackResult struct {
	Code  string
	State string
}

type callbackOutcome struct {
	result CallbackResult
	err    error
}

// CallbackServer is a one-shot loopback listener for the authorization redirect.
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	timeout  time.Duration

	once    sync.Once
	outcome chan callbackOutcome
}

// StartCallbackServer listens on an ephemeral loopback port.
func StartCallbackServer(timeout time.Duration) (*CallbackServer, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, mcperrors.NewOAuthError("failed to start callback listener", err)
	}

	s := &CallbackServer{
		listener: listener,
		timeout:  timeout,
		outcome:  make(chan callbackOutcome, 1),
	}
	router := chi.NewRouter()
	router.Get(CallbackPath, s.handleCallback)
	s.server = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnw("callback listener stopped", "error", err)
		}
	}()
	return s, nil
}

// RedirectURI is the redirect_uri to register and send.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", s.listener.Addr().String(), CallbackPath)
}

func (s *CallbackServer) deliver(o callbackOutcome) bool {
	delivered := false
	s.once.Do(func() {
		s.outcome <- o
		delivered = true
	})
	return delivered
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var o callbackOutcome
	switch {
	case q.Get("error") != "":
		msg := q.Get("error")
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		o.err = mcperrors.NewOAuthError("authorization denied: "+msg, nil)
	case q.Get("code") == "":
		o.err = mcperrors.NewOAuthError("callback is missing the authorization code", nil)
	default:
		o.result = CallbackResult{Code: q.Get("code"), State: q.Get("state")}
	}

	if !s.deliver(o) {
		http.Error(w, "This sign-in request has already been handled.", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if o.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, callbackPage, "Sign-in failed", html.EscapeString(mcperrors.MessageOf(o.err)))
		return
	}
	fmt.Fprintf(w, callbackPage, "Signed in", "You can close this window and return to your editor.")
}

const callbackPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>mcpgate</title></head>
<body style="font-family: sans-serif; margin: 4em;"><h1>%s</h1><p>%s</p></body></html>
`

// Wait blocks until the first callback arrives, the timeout passes or ctx ends.
// The listener is shut down in every case.
func (s *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	defer s.Close()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case o := <-s.outcome:
		return o.result, o.err
	case <-timer.C:
		return CallbackResult{}, mcperrors.NewOAuthError(
			fmt.Sprintf("timed out after %v waiting for the authorization callback", s.timeout), nil)
	case <-ctx.Done():
		return CallbackResult{}, mcperrors.NewOAuthError("authorization cancelled", ctx.Err())
	}
}

// Close stops the listener.
func (s *CallbackServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
