// --- File: pkg/relay/relay.go ---
package relay

// ServiceDependencies holds all the external services the presence-relay
// service needs to operate. This struct is used for dependency injection.
type ServiceDependencies struct {
	// --- Shared directory store ---
	Presence PresenceStore
	Tokens   TokenStore

	// --- Cross-instance fan-out ---
	Fanout Bus

	// --- Notifiers ---
	Push PushSender
}
