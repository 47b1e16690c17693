/*
Package config loads service configuration.

# Documents

Document wraps a decoded YAML or JSON file and provides typed lookups
that return a default when a key is missing or holds the wrong type:

	doc, err := config.ReadFile("diagramflow.yaml")
	ttl := doc.Section("session").Duration("ttl", time.Hour)

Durations accept Go duration strings or a number of seconds. ReadFile
expands ${NAME} environment references first, so a file can say
api_key: ${GEMINI_API_KEY}.

# Settings

Settings is the typed configuration of the service. Load resolves it in
three layers: Defaults, then the optional file, then environment
variables:

	DIAGRAMFLOW_ADDR, DIAGRAMFLOW_LOG_FORMAT, DIAGRAMFLOW_LOG_LEVEL
	DIAGRAMFLOW_SESSION_TTL, DIAGRAMFLOW_SESSION_BACKEND
	DIAGRAMFLOW_SESSION_DIR, DIAGRAMFLOW_SQLITE_PATH, DIAGRAMFLOW_REDIS_ADDR
	DIAGRAMFLOW_STREAM_PACING, DIAGRAMFLOW_DEFAULT_PRESET, DIAGRAMFLOW_RAW_HOST_MATCH
	GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY
	CUSTOM_API_KEY with CUSTOM_BASE_URL

BuildPresets turns the resolved provider presets into an llm.Presets.
*/
package config
