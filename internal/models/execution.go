package models

// ExecutionRequest is code submitted for out-of-process execution.
type ExecutionRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// ExecutionResult is the normalized outcome of running a toolchain.
// Output holds stdout on success and the diagnostic text on failure.
type ExecutionResult struct {
	Succeeded bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
}
