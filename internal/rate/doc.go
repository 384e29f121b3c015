// Package rate provides Redis-backed fixed-window throttles for sign-in and
// forgot-password.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// <prefix>:<scope>:<u|ip>:<id> with scope "signin" or "forgot". The per-IP
// window allows five times the per-email budget.
package rate
