package dto

// ErrorResponse is the error envelope every endpoint returns on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
