package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors
type ErrorCode string

const (
	ErrCodeProcessing       ErrorCode = "PROCESSING_ERROR"
	ErrCodeFFmpeg           ErrorCode = "FFMPEG_ERROR"
	ErrCodeInvalidRange     ErrorCode = "INVALID_RANGE"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeDecode           ErrorCode = "DECODE_ERROR"
	ErrCodeEncodeFallback   ErrorCode = "ENCODE_FALLBACK"
	ErrCodeSessionNotReady  ErrorCode = "SESSION_NOT_READY"
	ErrCodePreview          ErrorCode = "PREVIEW_ERROR"
	ErrCodeApplyFailed      ErrorCode = "APPLY_FAILED"
)

// EditorError is the base structured error
type EditorError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *EditorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EditorError) Unwrap() error {
	return e.Cause
}

// ProcessingError represents a general audio processing failure
type ProcessingError struct {
	EditorError
	Stage string
}

func NewProcessingError(stage, message string, cause error) *ProcessingError {
	return &ProcessingError{
		EditorError: EditorError{
			Code:    ErrCodeProcessing,
			Message: message,
			Cause:   cause,
		},
		Stage: stage,
	}
}

func (e *ProcessingError) Error() string {
	base := e.EditorError.Error()
	return fmt.Sprintf("%s (stage=%s)", base, e.Stage)
}

// FFmpegError represents an FFmpeg execution failure
type FFmpegError struct {
	EditorError
	Args     []string
	ExitCode int
	Stderr   string
}

func NewFFmpegError(message string, args []string, exitCode int, stderr string, cause error) *FFmpegError {
	return &FFmpegError{
		EditorError: EditorError{
			Code:    ErrCodeFFmpeg,
			Message: message,
			Cause:   cause,
		},
		Args:     args,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("[%s] %s (exit=%d, stderr=%q): %v",
		e.Code, e.Message, e.ExitCode, truncate(e.Stderr, 200), e.Cause)
}

// InvalidRangeError is returned when a time range cannot be applied to a buffer
type InvalidRangeError struct {
	EditorError
	Start float64
	End   float64
}

func NewInvalidRangeError(start, end float64, message string) *InvalidRangeError {
	return &InvalidRangeError{
		EditorError: EditorError{
			Code:    ErrCodeInvalidRange,
			Message: message,
		},
		Start: start,
		End:   end,
	}
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("[%s] start=%.3f end=%.3f: %s", e.Code, e.Start, e.End, e.Message)
}

// InvalidParameterError rejects an out-of-domain edit value. No state is
// mutated when it is returned.
type InvalidParameterError struct {
	EditorError
	Field string
	Value interface{}
}

func NewInvalidParameterError(field string, value interface{}, message string) *InvalidParameterError {
	return &InvalidParameterError{
		EditorError: EditorError{
			Code:    ErrCodeInvalidParameter,
			Message: message,
		},
		Field: field,
		Value: value,
	}
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("[%s] field=%s value=%v: %s", e.Code, e.Field, e.Value, e.Message)
}

// DecodeError means the source could not be decoded into PCM
type DecodeError struct {
	EditorError
	Source string
}

func NewDecodeError(source, message string, cause error) *DecodeError {
	return &DecodeError{
		EditorError: EditorError{
			Code:    ErrCodeDecode,
			Message: message,
			Cause:   cause,
		},
		Source: source,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (source=%s)", e.EditorError.Error(), e.Source)
}

// EncodeFallbackWarning records that a preferred codec failed and WAV was
// produced instead. It is logged, never returned to callers.
type EncodeFallbackWarning struct {
	EditorError
	Requested string
	Used      string
}

func NewEncodeFallbackWarning(requested, used string, cause error) *EncodeFallbackWarning {
	return &EncodeFallbackWarning{
		EditorError: EditorError{
			Code:    ErrCodeEncodeFallback,
			Message: "preferred encoder failed, using lossless fallback",
			Cause:   cause,
		},
		Requested: requested,
		Used:      used,
	}
}

// SessionNotReadyError is returned by session calls made before init
type SessionNotReadyError struct {
	EditorError
	Op string
}

func NewSessionNotReadyError(op string) *SessionNotReadyError {
	return &SessionNotReadyError{
		EditorError: EditorError{
			Code:    ErrCodeSessionNotReady,
			Message: "session is not initialized",
		},
		Op: op,
	}
}

func (e *SessionNotReadyError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
}

// PreviewGenerationError is delivered through the preview error callback
type PreviewGenerationError struct {
	EditorError
	Operation string
}

func NewPreviewGenerationError(operation string, cause error) *PreviewGenerationError {
	return &PreviewGenerationError{
		EditorError: EditorError{
			Code:    ErrCodePreview,
			Message: "could not generate preview",
			Cause:   cause,
		},
		Operation: operation,
	}
}

func (e *PreviewGenerationError) Error() string {
	return fmt.Sprintf("%s (operation=%s)", e.EditorError.Error(), e.Operation)
}

// ApplyFailedError wraps an engine failure during a full-quality apply
type ApplyFailedError struct {
	EditorError
	EditType string
}

func NewApplyFailedError(editType string, cause error) *ApplyFailedError {
	return &ApplyFailedError{
		EditorError: EditorError{
			Code:    ErrCodeApplyFailed,
			Message: "apply failed",
			Cause:   cause,
		},
		EditType: editType,
	}
}

func (e *ApplyFailedError) Error() string {
	return fmt.Sprintf("%s (edit=%s)", e.EditorError.Error(), e.EditType)
}

// Is enables errors.Is checks
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As enables errors.As checks
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
