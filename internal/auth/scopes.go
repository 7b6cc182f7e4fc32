package auth

// Scopes understood by the sync gateway.
const (
	ScopeLogsRead  = "logs:read"
	ScopeLogsWrite = "logs:write"
)
