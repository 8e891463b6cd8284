package main

// Message kinds on the reconciliation queue.
const (
	KindResume             = "resume"
	KindCompensationFailed = "compensation_failed"
)

// ReconciliationMessage is the payload sent from API -> SQS -> worker.
type ReconciliationMessage struct {
	Kind    string `json:"kind"`
	OrderID string `json:"order_id"`
	SagaID  string `json:"saga_id,omitempty"`
	Step    string `json:"step,omitempty"`
	Error   string `json:"error,omitempty"`
}
