package ingest

import (
	"errors"
	"fmt"
)

// Ingestion failures are fatal per upload and never retried by the service;
// the operator resubmits a corrected bundle. Kind tells the operator which
// step rejected it.
type ErrorKind string

const (
	KindNoEntryDocument        ErrorKind = "no_entry_document"
	KindDimensionsUndetectable ErrorKind = "dimensions_undetectable"
	KindPathTraversal          ErrorKind = "path_traversal"
	KindMalformed              ErrorKind = "malformed_bundle"
)

type IngestionError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ingest: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("ingest: %s", e.Kind)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func errOf(kind ErrorKind, detail string, err error) *IngestionError {
	return &IngestionError{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the ingestion error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
