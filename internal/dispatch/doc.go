// Package dispatch connects the MAX transport to the dialogue engine.
//
// Each inbound update is normalized to an Event, checked against the
// redelivery cache and processed under a per-user lock:
//
//	load -> engine.Handle -> AppendLead -> SaveConversation -> send actions
//
// Nothing is sent until the new state is stored. Button presses are always
// acknowledged, whatever the engine decided.
package dispatch
