// Package redis holds Redis-backed helpers for the assistant. Today that is
// the query embedding cache used by policy retrieval.
package redis
