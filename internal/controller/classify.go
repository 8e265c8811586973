package controller

import (
	"context"
	"errors"

	"github.com/ivlev/md2video/internal/assembly"
	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/encoder"
	"github.com/ivlev/md2video/internal/surface"
	"github.com/ivlev/md2video/internal/tts"
)

// ErrorKind is the reportable failure category in status output.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindSynthesis  ErrorKind = "synthesis"
	KindCapture    ErrorKind = "capture"
	KindEncoding   ErrorKind = "encoding"
	KindAssembly   ErrorKind = "assembly"
	KindTimeout    ErrorKind = "timeout"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// Classify maps an error to its reportable kind. Cancellation is checked
// first so a cancelled sub-job never reads as a component failure; typed
// errors win over a bare deadline, so a capture timeout stays a capture
// failure.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var se *tts.SynthesisError
	if errors.As(err, &se) {
		return KindSynthesis
	}
	var ce *surface.CaptureError
	if errors.As(err, &ce) {
		return KindCapture
	}
	var ee *encoder.EncodingError
	if errors.As(err, &ee) {
		return KindEncoding
	}
	var ae *assembly.AssemblyError
	if errors.As(err, &ae) {
		return KindAssembly
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}
