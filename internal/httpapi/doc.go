// Package httpapi is the HTTP surface of libauth-server: the chi router, the
// JSON envelopes and the request middleware stack (request id, recovery,
// access log, Prometheus metrics, security pipeline).
package httpapi
