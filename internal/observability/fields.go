package observability

// Standard field keys used across pipeline log entries.
const (
	FieldRequestID = "request_id"
	FieldResource  = "resource"
	FieldAction    = "action"
	FieldSubject   = "subject"
	FieldRoles     = "roles"
	FieldUpstream  = "upstream"
	FieldCacheKey  = "cache_key"
	FieldAttempt   = "attempt"
	FieldLatency   = "latency"
	FieldError     = "error"
	FieldClientIP  = "client_ip"
	FieldStatus    = "status"
)
