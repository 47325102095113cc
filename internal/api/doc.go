// Package api exposes the HTTP surface of the banking assistant: customer
// registration and login, authenticated and guest chat, the voice round trip,
// generated audio downloads, health and Prometheus metrics.
package api
