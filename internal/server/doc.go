// Package server exposes the service over HTTP. The /ws endpoint carries one
// conversation per websocket connection; the remaining endpoints provide
// health, session, configuration and statistics views for monitoring.
package server
