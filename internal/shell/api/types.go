package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// CreateContainerRequest is the request body for creating a container.
type CreateContainerRequest struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	Env           map[string]string `json:"env,omitempty"`
	ContainerPort int               `json:"container_port,omitempty"`
	HostPort      int               `json:"host_port,omitempty"`
	Protocol      string            `json:"protocol,omitempty"`
	HostPath      string            `json:"host_path,omitempty"`
	ContainerPath string            `json:"container_path,omitempty"`
	ReadOnly      bool              `json:"read_only,omitempty"`
	CPULimit      string            `json:"cpu_limit,omitempty"`
	MemoryLimit   string            `json:"memory_limit,omitempty"`
	Network       string            `json:"network,omitempty"`
}

// CreateStackRequest is the request body for creating a stack.
type CreateStackRequest struct {
	TemplateID string            `json:"template_id"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// =============================================================================
// Response Envelope
// =============================================================================

// Response is the uniform envelope for every API result.
type Response struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the structured error kind, message, and any captured
// runtime output.
type ErrorBody struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Output  *OutputBody `json:"output,omitempty"`
}

// OutputBody is captured runtime output attached to a failed operation.
type OutputBody struct {
	ExitCode int      `json:"exit_code"`
	Stdout   []string `json:"stdout,omitempty"`
	Stderr   []string `json:"stderr,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// TemplateResponse describes an allowed template to tenants. The raw
// definition stays server-side; tenants interact through variables.
type TemplateResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Kind      string            `json:"kind"`
	Defaults  map[string]string `json:"defaults,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ImageResponse describes a runtime image.
type ImageResponse struct {
	ID        string    `json:"id"`
	Tags      []string  `json:"tags,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// LogsResponse carries fetched log lines.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
