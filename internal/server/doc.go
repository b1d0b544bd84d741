// Package server exposes the song-rating API over HTTP.
//
// Every request passes through the same middleware chain: request ids,
// access logging, security headers, CORS, rate limiting and panic recovery
// wrap a gorilla/mux router whose routes record Prometheus metrics under
// their path template.
package server
