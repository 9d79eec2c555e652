package model

// WebhookResponse is returned to providers after a delivery.
type WebhookResponse struct {
	Received bool          `json:"received"`
	Outcome  IngestOutcome `json:"outcome,omitempty"`
}
