// --- File: internal/router/router.go ---
// Package router implements the event relay: resolve the target user's
// current presence and re-emit the event to whichever connection, on
// whichever instance, currently holds them.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-presence-relay/internal/dispatch"
	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// Router is the central relay state machine. It treats presence as valid for
// exactly one routing decision: entries can change at any moment due to a
// reconnect on another instance, so nothing is cached across events.
type Router struct {
	instanceID string
	presence   relay.PresenceStore
	fanout     relay.Bus
	local      relay.Deliverer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New is the constructor for the Router.
func New(
	instanceID string,
	presence relay.PresenceStore,
	fanout relay.Bus,
	local relay.Deliverer,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) (*Router, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("instance id cannot be empty")
	}
	if presence == nil {
		return nil, fmt.Errorf("presence store cannot be nil")
	}
	if fanout == nil {
		return nil, fmt.Errorf("fan-out bus cannot be nil")
	}
	if local == nil {
		return nil, fmt.Errorf("local deliverer cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &Router{
		instanceID: instanceID,
		presence:   presence,
		fanout:     fanout,
		local:      local,
		dispatcher: dispatcher,
		logger:     logger.With("component", "router", "instance", instanceID),
	}, nil
}

// Route handles one inbound relayable event. Relay is fire-and-forget: the
// sender is never blocked on, or told about, the outcome.
func (r *Router) Route(ctx context.Context, event *relay.Event) {
	if !event.Kind.IsRelayable() {
		return
	}

	target, err := event.TargetUserID()
	if err != nil || target == "" {
		r.logger.Warn("Discarding event without a target", "kind", string(event.Kind), "err", err)
		return
	}
	log := r.logger.With("kind", string(event.Kind), "target", target)

	// The push branch runs on its own goroutine and never joins the relay
	// path; a provider outage cannot delay real-time delivery.
	if event.Kind.NeedsPushFallback() {
		r.dispatcher.DispatchAsync(event)
	}

	entry, err := r.presence.Lookup(ctx, target)
	if err != nil {
		// Transient store failure reads as "not connected": fail closed and
		// drop the relay.
		log.Warn("Presence lookup failed, dropping relay", "err", err)
		return
	}
	if entry == nil {
		log.Debug("Target not connected, dropping relay")
		return
	}

	if entry.InstanceID == r.instanceID {
		if !r.local.Deliver(entry.ConnectionID, event) {
			// The connection closed between lookup and delivery.
			log.Debug("Local connection already gone", "conn", entry.ConnectionID)
		}
		return
	}

	frame := &relay.Frame{TargetUserID: target, Event: *event}
	if err := r.fanout.Publish(ctx, entry.InstanceID, frame); err != nil {
		log.Warn("Fan-out publish failed, dropping relay", "peer", entry.InstanceID, "err", err)
	}
}

// HandleFrame delivers a fan-out frame published by another instance.
// Presence is re-resolved locally first: if the user reconnected elsewhere
// between publish and receipt, the route is stale and the frame is dropped
// rather than delivered to the wrong connection.
func (r *Router) HandleFrame(ctx context.Context, frame *relay.Frame) {
	log := r.logger.With("kind", string(frame.Event.Kind), "target", frame.TargetUserID)

	entry, err := r.presence.Lookup(ctx, frame.TargetUserID)
	if err != nil {
		log.Warn("Presence re-check failed, dropping frame", "err", err)
		return
	}
	if entry == nil || entry.InstanceID != r.instanceID {
		log.Debug("Stale fan-out route, dropping frame")
		return
	}
	if !r.local.Deliver(entry.ConnectionID, &frame.Event) {
		log.Debug("Local connection already gone", "conn", entry.ConnectionID)
	}
}
