package notification

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates dispatch failures. Every stage of the
// dispatcher reports exactly one kind; none is used as control flow.
type ErrorKind string

const (
	// KindConfiguration: channel disabled or unset for (clinic, event)
	KindConfiguration ErrorKind = "configuration_error"
	// KindIntegrationNotConnected: provider account not linked for this clinic
	KindIntegrationNotConnected ErrorKind = "integration_not_connected"
	// KindTemplateNotFound: neither a custom nor a system-default template exists
	KindTemplateNotFound ErrorKind = "template_not_found"
	// KindMissingRecipientContact: patient has no email/phone for the channel
	KindMissingRecipientContact ErrorKind = "missing_recipient_contact"
	// KindRender is reserved for malformed template syntax; rendering is
	// lenient today and unknown tokens pass through verbatim
	KindRender ErrorKind = "render_error"
	// KindSendFailure: the provider call itself failed
	KindSendFailure ErrorKind = "send_failure"
)

// DispatchError is the discriminated failure result of a dispatch stage
type DispatchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func newDispatchError(kind ErrorKind, message string) *DispatchError {
	return &DispatchError{Kind: kind, Message: message}
}

func wrapDispatchError(kind ErrorKind, message string, err error) *DispatchError {
	return &DispatchError{Kind: kind, Message: message, Err: err}
}

// AsDispatchError extracts a DispatchError from an error chain
func AsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ErrOutsideSessionWindow is returned by a chat provider when a
// free-form message is rejected because the 24-hour customer session
// window is closed. The chat sender falls back to the approved-template
// path when it sees this error.
var ErrOutsideSessionWindow = errors.New("recipient outside customer session window")
