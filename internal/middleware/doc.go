// Package middleware wraps the status server's handlers with request
// logging in W3C Extended Log Format and Prometheus request metrics.
package middleware
