package core

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. Oracle failures are absorbed inside the
// relevance synthesizer and never reach here.
var (
	// ErrNotFound reports an unknown video id or artifact fingerprint.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessing rejects a second concurrent ingestion of the same video.
	ErrAlreadyProcessing = errors.New("video is already being processed")

	// ErrNoAssemblableContent means every segment of an assembly failed to extract.
	ErrNoAssemblableContent = errors.New("no assemblable content")
)

// IngestionError marks a video whose boundary detection, analysis or indexing
// failed. The video is left in the failed state with no partial scenes exposed.
type IngestionError struct {
	VideoID string
	Step    string
	Err     error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for video %s at %s: %v", e.VideoID, e.Step, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// OracleError is a failed or malformed judgment-oracle result. It is recovered
// via the deterministic fallback; it exists so the fallback reasoning can name
// the cause.
type OracleError struct {
	VideoID string
	Err     error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle judgment failed for video %s: %v", e.VideoID, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }
