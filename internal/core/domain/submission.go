package domain

import (
	"io"
	"time"
)

type SubmissionState string

const (
	SubmissionIdle       SubmissionState = "idle"
	SubmissionSubmitting SubmissionState = "submitting"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is a one-shot status message shown on the next render.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// RelayBody is a proxied request body held outside memory. Open may be called
// once per attempt and each call starts from the first byte.
type RelayBody struct {
	Size int64
	Open func() (io.ReadCloser, error)
}

// RelayResponse is what the upload proxy writes back to its caller.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type UploadEvent struct {
	BatchID     string    `json:"batch_id"`
	Mode        string    `json:"mode"`
	Filenames   []string  `json:"filenames"`
	StatusCode  int       `json:"status_code"`
	BodyBytes   int64     `json:"body_bytes"`
	DeliveredAt time.Time `json:"delivered_at"`
}
