package contracts

// RouteTask is one outbound route.v1 call constructed by the router for a
// single dispatch target.
type RouteTask struct {
	RequestID     string                 `json:"request_id"`
	Target        string                 `json:"target"`
	Prompt        string                 `json:"prompt"`
	PromptVersion string                 `json:"prompt_version"`
	Context       map[string]any         `json:"context,omitempty"`
	DeadlineMs    int64                  `json:"deadline_ms"`
	Attempt       int                    `json:"attempt"`
}

// NotifyTask is an outbound notify.v1 call, used for directing a butler to
// emit an outbound message on a channel rather than to process a route.
type NotifyTask struct {
	SourceButler string         `json:"source_butler"`
	Channel      string         `json:"channel"`
	Recipient    string         `json:"recipient"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	TraceID      string         `json:"trace_id,omitempty"`
}

// DispatchResponse is what a route.v1/notify.v1 sink returns.
type DispatchResponse struct {
	Success       bool    `json:"success"`
	DurationMs    int64   `json:"duration_ms"`
	Error         string  `json:"error,omitempty"`
	ErrorCategory string  `json:"error_category,omitempty"`
}

// IngestResponse is the canonical response Connector Ingress returns for
// every accepted submission.
type IngestResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Duplicate bool   `json:"duplicate"`
}
