package domain

import (
	"errors"
	"fmt"
)

// FaultKind classifies the recoverable failures of the conversation surface.
type FaultKind string

const (
	FaultPermissionDenied FaultKind = "permission_denied"
	FaultDeviceNotFound   FaultKind = "device_not_found"
	FaultConnection       FaultKind = "connection_error"
	FaultTimeout          FaultKind = "timeout"
	FaultDecode           FaultKind = "decode_error"
	FaultPlayback         FaultKind = "playback_error"
	FaultBackend          FaultKind = "backend_error"
	FaultEmptyCapture     FaultKind = "empty_capture"
)

// notices maps each fault kind to its short, user-facing Persian message.
var notices = map[FaultKind]string{
	FaultPermissionDenied: "لطفاً دسترسی به میکروفن را فعال کنید",
	FaultDeviceNotFound:   "میکروفنی پیدا نشد",
	FaultConnection:       "خطا در اتصال",
	FaultTimeout:          "پاسخی دریافت نشد، دوباره تلاش کن",
	FaultDecode:           "خطای پخش صدا",
	FaultPlayback:         "خطای پخش صدا",
	FaultBackend:          "خطا در دریافت پاسخ",
	FaultEmptyCapture:     "صدا خیلی کوتاه بود",
}

// Fault is a recoverable failure: it carries a localized notice for the user
// and wraps the underlying cause for logs. Faults never terminate the
// session; the state machine surfaces the notice and returns to Idle.
type Fault struct {
	Kind FaultKind
	Err  error
}

// NewFault wraps err as a fault of the given kind. A nil err is allowed for
// faults that have no underlying cause, such as an empty capture.
func NewFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Notice returns the localized user-facing message for the fault.
func (f *Fault) Notice() string {
	if n, ok := notices[f.Kind]; ok {
		return n
	}
	return notices[FaultBackend]
}

// AsFault extracts a *Fault from err, classifying unrecognized errors as
// backend faults so every failure still produces a user notice.
func AsFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return NewFault(FaultBackend, err)
}

// IsFault reports whether err is a fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
