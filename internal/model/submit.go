package model

// SubmitReceipt is the successful outcome of a relay submission.
type SubmitReceipt struct {
	Reference  string
	FileID     string
	StatusCode int
}
