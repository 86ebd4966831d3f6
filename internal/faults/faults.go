// Package faults defines the failure taxonomy shared by the artifact store,
// the pipeline runner, and the comparison tooling. Each failure carries one
// of the sentinel markers below so callers can classify with errors.Is while
// summaries record the stable "<Kind>: <message>" form.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("artifact not found")
	ErrSchemaInvalid        = errors.New("schema validation failed")
	ErrHashMismatch         = errors.New("artifact hash mismatch")
	ErrContinuationMissing  = errors.New("continuation decision missing")
	ErrContinuationRejected = errors.New("continuation rejected")
	ErrSchemaMissing        = errors.New("schema metadata missing")
	ErrStageFailure         = errors.New("stage failure")
)

// Ordered so classification is deterministic when an error chain carries
// more than one marker: the first match wins.
var kinds = []struct {
	marker error
	name   string
}{
	{ErrNotFound, "NotFound"},
	{ErrSchemaInvalid, "SchemaInvalid"},
	{ErrHashMismatch, "HashMismatch"},
	{ErrContinuationMissing, "ContinuationMissing"},
	{ErrContinuationRejected, "ContinuationRejected"},
	{ErrSchemaMissing, "SchemaMissing"},
	{ErrStageFailure, "StageFailure"},
}

// Wrap tags err (or a fresh error when err is nil) with the given marker and
// a detail string built from the non-empty parts of stage, operation, and
// message. The marker should be one of the exported sentinels; a nil marker
// defaults to ErrStageFailure.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the name of the error kind, or "StageFailure" for errors that
// carry no known marker.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "StageFailure"
}

// Format renders err as "<Kind>: <message>", the form recorded in run
// summaries. The marker's own text is stripped from the message so the kind
// name is not stated twice.
func Format(err error) string {
	if err == nil {
		return ""
	}
	kind := Kind(err)
	message := err.Error()
	for _, k := range kinds {
		if k.name == kind {
			message = strings.TrimPrefix(message, k.marker.Error())
			message = strings.TrimPrefix(message, ": ")
			break
		}
	}
	if message == "" {
		message = err.Error()
	}
	return kind + ": " + message
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
