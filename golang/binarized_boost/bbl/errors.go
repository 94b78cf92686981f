package bbl

import (
	"errors"
	"fmt"
)

var (
	//ErrConfiguration matches errors caused by unknown feature indices or features absent from the catalog.
	ErrConfiguration = errors.New("configuration error")
	//ErrConsistency matches invariant violations such as a shrinking perfect hash table.
	ErrConsistency = errors.New("consistency error")
	//ErrParse matches malformed raw values.
	ErrParse = errors.New("parse error")
	//ErrNotFound matches lookups of raw categorical values missing from a perfect hash.
	ErrNotFound = errors.New("not found")
)

//ConfigurationError is returned when a feature is unknown to the catalog or has the wrong kind.
type ConfigurationError struct {
	FeatureID uint32
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: feature #%d: %s", e.FeatureID, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configurationErrorf(featureID uint32, format string, args ...any) error {
	return &ConfigurationError{FeatureID: featureID, Reason: fmt.Sprintf(format, args...)}
}

//ConsistencyError signals a broken invariant. It is never patched silently.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency error: " + e.Reason
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

func consistencyErrorf(format string, args ...any) error {
	return &ConsistencyError{Reason: fmt.Sprintf(format, args...)}
}

//ParseError is a malformed raw value enriched with its row and column.
//Column is the feature id for quantization errors and the source column for ingestion errors.
type ParseError struct {
	Row    int
	Column int
	Value  string
	cause  error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error: row %d, column %d, value %q", e.Row, e.Column, e.Value)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.cause }

//NotFoundError is returned when a raw categorical value has no perfect hash entry.
//Hashing always precedes extraction, so it is also a consistency error.
type NotFoundError struct {
	FeatureID uint32
	Value     uint32
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("hash for feature #%d was not found %d", e.FeatureID, e.Value)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrConsistency
}
