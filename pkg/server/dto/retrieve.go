package dto

// RetrieveRequest carries a retrieval query with optional parameter
// overrides. Absent or zero fields fall back to the configured defaults.
type RetrieveRequest struct {
	Query           string   `json:"query" binding:"required"`
	TopN            int      `json:"top_n,omitempty"`
	K               int      `json:"k,omitempty"`
	DiversityWeight *float64 `json:"diversity_weight,omitempty"`
	Depth           *int     `json:"depth,omitempty"`
	Analyze         *bool    `json:"analyze,omitempty"`
}

// AnswerRequest carries a question for grounded answering. The retrieval
// overrides mirror RetrieveRequest.
type AnswerRequest struct {
	Question        string   `json:"question" binding:"required"`
	TopN            int      `json:"top_n,omitempty"`
	K               int      `json:"k,omitempty"`
	DiversityWeight *float64 `json:"diversity_weight,omitempty"`
	Depth           *int     `json:"depth,omitempty"`
}
