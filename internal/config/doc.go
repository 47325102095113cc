// Package config loads the assistant's runtime configuration from JSON or
// YAML files and overlays the environment variables used by the container
// deployment (DATABASE_URL, SECRET_KEY, MODEL_NAME, OLLAMA_BASE_URL).
package config
