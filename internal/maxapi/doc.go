// Package maxapi is a small client for the MAX messenger Bot API.
//
// It covers what the intake bot needs: long-polling GET /updates, sending
// messages with inline keyboards, answering button callbacks, registering a
// webhook subscription and decoding webhook bodies. Authentication is the
// raw access token in the Authorization header.
package maxapi
