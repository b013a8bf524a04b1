package types

// Envelope is the body shape of every API response. Success is 1 or 0.
type Envelope struct {
	Success int    `json:"success"`
	Detail  string `json:"detail"`
	Data    any    `json:"data"`
	Total   *int64 `json:"total,omitempty"`
}

// ErrorEnvelope extends the envelope with the machine-readable error code and
// structured details (for example the unavailable order lines).
type ErrorEnvelope struct {
	Success int    `json:"success"`
	Detail  string `json:"detail"`
	Data    any    `json:"data"`
	Code    string `json:"code"`
	Errors  any    `json:"errors,omitempty"`
}
