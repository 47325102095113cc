// Package llm defines the provider-neutral chat-with-tools contract used by the
// agents. Providers live in sub-packages: ollama for local models, openai for
// any Chat Completions compatible endpoint and anthropic for Claude.
package llm
