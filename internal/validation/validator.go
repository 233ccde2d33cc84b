// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package validation provides struct validation using go-playground/validator
// v10 behind a thread-safe singleton, plus the domain checks on inbound
// sighting records that struct tags cannot express (clock skew, session
// time bounds).
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns the human-readable message.
func (e *FieldError) Error() string {
	return e.Message
}

// StructError is a collection of field validation failures for one struct.
type StructError struct {
	Fields []FieldError
}

// Error implements the error interface with a combined message.
func (se *StructError) Error() string {
	if len(se.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(se.Fields))
	for i, fe := range se.Fields {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance. The validator caches
// struct metadata, so sharing one instance is both safe and fast.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct against its validate tags. Returns nil on
// success or a *StructError listing every failed field.
func ValidateStruct(s interface{}) *StructError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &StructError{Fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &StructError{Fields: fields}
}

// SightingBounds holds the time constraints applied to an inbound sighting
// beyond struct tags.
type SightingBounds struct {
	// Now is the reference clock for skew checks.
	Now time.Time

	// ClockSkewTolerance is how far in the future a timestamp may be.
	ClockSkewTolerance time.Duration

	// SessionStart rejects sightings timestamped before the owning session
	// began. Zero disables the check.
	SessionStart time.Time
}

// ValidateRawSighting validates one raw capture record: struct tags first,
// then time bounds. Coordinate presence must be pairwise: a latitude without
// a longitude (or vice versa) is rejected rather than half-trusted.
func ValidateRawSighting(raw *models.RawSighting, bounds SightingBounds) error {
	if se := ValidateStruct(raw); se != nil {
		return se
	}

	if (raw.Latitude == nil) != (raw.Longitude == nil) {
		return fmt.Errorf("sighting for %s carries an incomplete coordinate pair", raw.DeviceID)
	}

	if bounds.ClockSkewTolerance > 0 {
		limit := bounds.Now.Add(bounds.ClockSkewTolerance)
		if raw.TimestampUTC.After(limit) {
			return fmt.Errorf("sighting timestamp %s is beyond clock skew tolerance (now %s)",
				raw.TimestampUTC.Format(time.RFC3339), bounds.Now.Format(time.RFC3339))
		}
	}

	if !bounds.SessionStart.IsZero() && raw.TimestampUTC.Before(bounds.SessionStart) {
		return fmt.Errorf("sighting timestamp %s predates session start %s",
			raw.TimestampUTC.Format(time.RFC3339), bounds.SessionStart.Format(time.RFC3339))
	}

	return nil
}

// errorMessageTemplates maps validation tags to message templates without a
// parameter.
var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"latitude":  "%s must be a valid latitude (-90 to 90)",
	"longitude": "%s must be a valid longitude (-180 to 180)",
}

// errorMessageWithParam maps validation tags to templates that include the
// tag parameter.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
