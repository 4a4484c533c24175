package models

// StudentCode is a 7 or 8 digit institutional identifier kept as a string.
type StudentCode = string

// CodeBatch is a deduplicated set of codes partitioned by format and existence.
// Valid and Invalid keep first-seen order. Confirmed and Unknown partition Valid
// once a remote validation ran.
type CodeBatch struct {
	Valid     []string `json:"valid"`
	Invalid   []string `json:"invalid"`
	Confirmed []string `json:"confirmed,omitempty"`
	Unknown   []string `json:"unknown,omitempty"`
}

// BulkOutcome is the result of one attempted code in a bulk submission.
type BulkOutcome string

const (
	OutcomeRegistered         BulkOutcome = "registered"
	OutcomeRejectedFormat     BulkOutcome = "rejected-format"
	OutcomeRejectedValidation BulkOutcome = "rejected-validation"
	OutcomeRejectedRemote     BulkOutcome = "rejected-remote-error"
)

// BulkOperationResult is the per-code outcome of a bulk submission.
type BulkOperationResult struct {
	Code    string      `json:"code"`
	Outcome BulkOutcome `json:"outcome"`
	Error   string      `json:"error,omitempty"`
}

// BulkSummary counts outcomes.
type BulkSummary struct {
	Attempted  int `json:"attempted"`
	Registered int `json:"registered"`
	Rejected   int `json:"rejected"`
}

// Summarize counts a result list. Attempted excludes codes that never reached the network.
func Summarize(results []BulkOperationResult) BulkSummary {
	var s BulkSummary
	for _, r := range results {
		switch r.Outcome {
		case OutcomeRegistered:
			s.Attempted++
			s.Registered++
		case OutcomeRejectedRemote:
			s.Attempted++
			s.Rejected++
		default:
			s.Rejected++
		}
	}
	return s
}

// ValidationResponse is the upstream bulk validation response.
type ValidationResponse struct {
	CantidadValidos int      `json:"cantidadValidos"`
	Invalidos       []string `json:"invalidos"`
}
