// Package dialogue implements the intake conversation engine.
//
// The flow is a static table (Flow) of branches and per-state steps. An
// Engine built from it turns a Conversation and one Input into a Result: the
// next Conversation, whether it must be persisted, an optional Lead and the
// ordered outbound Actions. The engine never performs I/O; the dispatch
// package loads and saves conversations and executes the actions.
//
// # Transition rules
//
// Before the per-state handler runs, universal commands are checked in order:
//
//  1. Session start or a menu command ("/start", "меню", "главное меню",
//     "в меню") resets the conversation and sends the main menu, unless the
//     menu was sent within the debounce window.
//  2. The contact shortcut jumps to phone collection, keeping the topic.
//  3. A main menu label received outside StateStart is a restart request.
//
// Blank or unrecognized input re-sends the current prompt and leaves the
// conversation untouched. Accepted input writes at most one field, advances
// the state and asks for persistence.
//
// # Collected data
//
// Answers live in typed per-branch records implementing Details. They are
// flattened to a string map only when converted to a store.Conversation.
package dialogue
