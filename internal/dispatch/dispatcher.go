// --- File: internal/dispatch/dispatcher.go ---
// Package dispatch implements the notification fallback: the best-effort push
// attempt issued for message-class events, independent of relay outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

const defaultDispatchTimeout = 10 * time.Second

// Dispatcher resolves the recipient's push token and issues exactly one push
// attempt per qualifying event. Presence is deliberately not consulted: a
// reachable socket does not mean the app is foregrounded, so a token on file
// always gets the attempt.
type Dispatcher struct {
	tokens  relay.TokenStore
	sender  relay.PushSender
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher is the constructor for the Dispatcher.
func NewDispatcher(tokens relay.TokenStore, sender relay.PushSender, logger *slog.Logger) (*Dispatcher, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store cannot be nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("push sender cannot be nil")
	}
	return &Dispatcher{
		tokens:  tokens,
		sender:  sender,
		timeout: defaultDispatchTimeout,
		logger:  logger.With("component", "dispatcher"),
	}, nil
}

// DispatchAsync evaluates the push fallback on its own goroutine with its own
// deadline. The relay path never waits on it: a hung provider call must not
// delay delivery to a live connection.
func (d *Dispatcher) DispatchAsync(event *relay.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.Dispatch(ctx, event)
	}()
}

// Dispatch issues at most one push attempt for the event. Every exit that is
// not a provider call is a branch outcome, not an error: wrong kind, no
// target, no token.
func (d *Dispatcher) Dispatch(ctx context.Context, event *relay.Event) {
	if !event.Kind.NeedsPushFallback() {
		return
	}

	var payload relay.MessagePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		d.logger.Warn("Discarding push for undecodable message payload", "err", err)
		return
	}
	if payload.UserID == "" {
		return
	}
	log := d.logger.With("target", payload.UserID)

	token, err := d.tokens.Fetch(ctx, payload.UserID)
	if err != nil {
		log.Warn("Failed to fetch push token, skipping push", "err", err)
		return
	}
	if token == "" {
		log.Debug("No push token on file, skipping push")
		return
	}

	title := payload.Title
	if title == "" {
		title = payload.ChatName
	}
	if title == "" {
		title = "New message"
	}

	data := map[string]string{
		"kind":   string(event.Kind),
		"chatId": payload.ChatID,
	}

	if err := d.sender.Send(ctx, token, title, payload.Body, data); err != nil {
		// Swallowed: push failure is never surfaced to the sender and never
		// retried.
		log.Warn("Push attempt failed", "err", err)
		return
	}
	log.Debug("Push attempt issued")
}

// Wait blocks until all in-flight dispatches have finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
