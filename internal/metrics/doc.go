// Package metrics defines the Prometheus metrics of the interpretation service.
package metrics
