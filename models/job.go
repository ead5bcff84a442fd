package models

// Task discriminators accepted by the job handler.
const (
	TaskEncoding     = "ENCODING"
	TaskDownsampling = "DOWNSAMPLING"
)

// Job is a single invocation as delivered by the harness (HTTP body or CLI file).
type Job struct {
	Task       string         `json:"task"`
	Parameters map[string]any `json:"parameters"`
}

// Result is the success payload returned to the harness.
type Result struct {
	ID         string `json:"id"`
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// JobClaims are the claims carried by a job-submission token.
type JobClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
