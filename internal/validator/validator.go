// Package validator rejects events that cannot enter a batch.
package validator

import (
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/event"
)

// Validator checks raw events before they are buffered. Every event needs a
// body; with CloudEvents enabled the ce_* headers must also describe a valid
// CloudEvent.
type Validator struct {
	cloudEvents bool
}

// New creates a validator.
func New(cloudEvents bool) *Validator {
	return &Validator{cloudEvents: cloudEvents}
}

// Validate returns a *errors.ValidationError when e is rejected.
func (v *Validator) Validate(e *event.Event) error {
	if e == nil {
		return &errors.ValidationError{Field: "event", Reason: "event is nil"}
	}
	if len(e.Body) == 0 {
		return &errors.ValidationError{Field: "body", Reason: "empty payload"}
	}
	if !v.cloudEvents {
		return nil
	}
	return validateCloudEvent(e)
}

func validateCloudEvent(e *event.Event) error {
	version := e.Header(event.HeaderCESpecVersion)
	switch version {
	case "":
		return &errors.ValidationError{Field: "specversion", Reason: "required field is missing"}
	case "0.1":
		// Legacy producers; the attributes match 1.0.
		version = cloudevents.VersionV1
	case cloudevents.VersionV1, cloudevents.VersionV03:
	default:
		return &errors.ValidationError{
			Field:  "specversion",
			Reason: fmt.Sprintf("unsupported version: %s (supported: 0.3, 1.0)", version),
		}
	}

	for _, attr := range []struct{ field, header string }{
		{"id", event.HeaderCEID},
		{"source", event.HeaderCESource},
		{"type", event.HeaderCEType},
	} {
		if e.Header(attr.header) == "" {
			return &errors.ValidationError{Field: attr.field, Reason: "required field is missing"}
		}
	}

	ce := cloudevents.NewEvent(version)
	ce.SetID(e.Header(event.HeaderCEID))
	ce.SetSource(e.Header(event.HeaderCESource))
	ce.SetType(e.Header(event.HeaderCEType))
	if err := ce.Validate(); err != nil {
		return &errors.ValidationError{Field: "cloudevent", Reason: err.Error()}
	}
	return nil
}
