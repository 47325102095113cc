// Package agent contains the orchestration core of the banking assistant.
// Each turn is routed to exactly one specialist (onboarding, banking or
// advisory); the specialist runs a bounded tool-calling loop against the LLM
// using only the tools its profile allows.
package agent
