// Package observability builds the service's zap logger and Prometheus
// collectors, and provides the HTTP middleware that feeds them.
package observability
