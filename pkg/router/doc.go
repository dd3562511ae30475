// Package router classifies inbound bus events and applies them to the
// turnout store.
//
// Two inbound message kinds are routed. An event Report is an
// unconditional "this event happened" and is always applied. A
// ProducerIdentified is a response to a state query and carries a
// validity flag: only VALID responses are applied. An INVALID response
// means "not currently true", not "the other state is true" - the
// genuinely active state arrives as a separate VALID response for the
// other event ID.
//
// Events matching no turnout are silently ignored, unless discovery
// mode is on, in which case they are forwarded to the discovery
// callback so foreign devices on the bus can be registered manually.
package router
