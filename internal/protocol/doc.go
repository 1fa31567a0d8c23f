// Package protocol defines the websocket message protocol. Binary messages
// carry little-endian PCM-16 audio; text messages carry JSON control commands
// from the client and JSON events to it.
package protocol
