package types

type ContextKey string

const (
	ContextKeyRequestID     ContextKey = "request_id"
	ContextKeySessionID     ContextKey = "session_id"
	ContextKeyRequestSource ContextKey = "request_source"
	ContextKeyQuery         ContextKey = "query"
)
