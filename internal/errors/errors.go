// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafeventavro/pkg/event"
)

// Sentinel errors for common conditions. Typed errors below match their
// kind's sentinel with errors.Is.
var (
	ErrSchemaLoad         = errors.New("schema load failed")
	ErrPayloadFormat      = errors.New("malformed payload")
	ErrEnvelopeKeyMissing = errors.New("envelope key missing")
	ErrMissingField       = errors.New("required field missing")
	ErrTypeCoercion       = errors.New("type coercion failed")
	ErrEncoderState       = errors.New("invalid encoder state")
	ErrEncode             = errors.New("record encoding failed")

	ErrConsumerClosed = errors.New("consumer is closed")
	ErrProducerClosed = errors.New("producer is closed")
	ErrBufferFull     = errors.New("buffer is full")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrWriterClosed   = errors.New("storage writer is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// SchemaLoadError reports that the schema locator could not be read or parsed.
type SchemaLoadError struct {
	Locator string
	Err     error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("schema load error: locator=%q: %v", e.Locator, e.Err)
}

func (e *SchemaLoadError) Unwrap() error        { return e.Err }
func (e *SchemaLoadError) Is(target error) bool { return target == ErrSchemaLoad }

// PayloadFormatError reports a body that is not a single JSON object.
type PayloadFormatError struct {
	Err error
}

func (e *PayloadFormatError) Error() string {
	return fmt.Sprintf("payload format error: %v", e.Err)
}

func (e *PayloadFormatError) Unwrap() error        { return e.Err }
func (e *PayloadFormatError) Is(target error) bool { return target == ErrPayloadFormat }

// EnvelopeKeyMissingError reports that the envelope key is absent or does not
// hold an object.
type EnvelopeKeyMissingError struct {
	Key    string
	Reason string
}

func (e *EnvelopeKeyMissingError) Error() string {
	return fmt.Sprintf("envelope key error: key=%q: %s", e.Key, e.Reason)
}

func (e *EnvelopeKeyMissingError) Is(target error) bool { return target == ErrEnvelopeKeyMissing }

// MissingFieldError reports a required scalar absent from the payload.
type MissingFieldError struct {
	Path string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Path)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// TypeCoercionError reports a payload value that cannot be represented as the
// declared field type.
type TypeCoercionError struct {
	Path  string
	Want  string
	Got   string
	Value string
}

func (e *TypeCoercionError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %q: cannot coerce %s %s to %s", e.Path, e.Got, e.Value, e.Want)
	}
	return fmt.Sprintf("field %q: cannot coerce %s to %s", e.Path, e.Got, e.Want)
}

func (e *TypeCoercionError) Is(target error) bool { return target == ErrTypeCoercion }

// EncoderStateError reports an operation on a finished container writer.
type EncoderStateError struct {
	Op string
}

func (e *EncoderStateError) Error() string {
	return fmt.Sprintf("encoder state error: %s after finish", e.Op)
}

func (e *EncoderStateError) Is(target error) bool { return target == ErrEncoderState }

// EncodeError reports a typed record the container codec rejected.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("encode error: %v", e.Err)
	}
	return fmt.Sprintf("encode error: field %q: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error        { return e.Err }
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// RecordError ties a failure to the position of the record in its batch.
type RecordError struct {
	Index  int
	Offset int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (offset %d): %v", e.Index, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// ProcessingError represents a failed batch of one partition.
type ProcessingError struct {
	PartitionID event.PartitionID
	FirstOffset int64
	LastOffset  int64
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: partition=%s offsets=%d-%d: %v",
		e.PartitionID, e.FirstOffset, e.LastOffset, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ValidationError represents an inbound event validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidEvent }

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CommitError represents an offset commit failure.
type CommitError struct {
	PartitionID event.PartitionID
	Offset      int64
	Err         error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Kind returns a stable label for the error class, used for metrics and
// dead-letter reasons.
func Kind(err error) string {
	var storageErr *StorageError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSchemaLoad):
		return "schema_load"
	case errors.Is(err, ErrPayloadFormat):
		return "payload_format"
	case errors.Is(err, ErrEnvelopeKeyMissing):
		return "envelope_key_missing"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrTypeCoercion):
		return "type_coercion"
	case errors.Is(err, ErrEncoderState):
		return "encoder_state"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrInvalidEvent):
		return "validation"
	case errors.As(err, &storageErr):
		return "storage"
	default:
		return "unknown"
	}
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable reports whether a SchemaLoadError may succeed on a later call.
// Parse failures of a readable document are permanent.
func (e *SchemaLoadError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
