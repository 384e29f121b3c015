// Package internal holds helpers private to libauth, currently reset token
// generation and digesting.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: viper-backed process configuration
//   - httpapi: chi router and handlers for the service binary
//   - lockout: failed sign-in state machine
//   - logger: zap construction and request-scoped fields
//   - notify: asynchronous outbound message delivery
//   - rate: Redis fixed-window throttles
//   - security: security posture report
//   - stores: credential store implementations
package internal
