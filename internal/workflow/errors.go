package workflow

import (
	"errors"
	"fmt"
)

// ErrMissingImage is returned before any remote call when no image was supplied.
var ErrMissingImage = errors.New("please select an image file")

// Step names carried by RemoteError.
const (
	StepCreateProject = "CreateProject"
	StepUploadToken   = "UploadToken"
	StepCreatePayment = "CreatePayment"
)

// RemoteError reports a failed NMKR call. Status is zero when the request
// never produced an HTTP response, in which case Err holds the cause.
type RemoteError struct {
	Step   string `json:"step"`
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
	Err    error  `json:"-"`
}

func (e *RemoteError) Error() string {
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed: HTTP error! status: %d, message: %s", e.Step, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// MissingFieldError is returned when a 2xx response lacks a required identifier.
type MissingFieldError struct {
	Step  string `json:"step"`
	Field string `json:"field"`
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s response is missing %s", e.Step, e.Field)
}
