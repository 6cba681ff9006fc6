package chessdto

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "analysis service error"
}

// ErrorResponse is the JSON body of every non-2xx API reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func NewErrorResponse(e DomainError) ErrorResponse {
	return ErrorResponse{Error: e.Error(), Code: e.Code, Retryable: e.Retryable}
}
