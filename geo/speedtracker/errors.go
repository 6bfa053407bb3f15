package speedtracker

import "fmt"

// kindError is a sentinel error that knows its kind,
// which is how it gets reported in status JSON.
type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrPermissionDenied is returned by sources when the cat hasn't authorized location access.
	// The caller should ask for permission and then Start again.
	ErrPermissionDenied = &kindError{"permission_denied", "location permission denied"}

	// ErrInvalidSampleOrdering rejects a sample that isn't strictly after the previous one.
	// It's a local recovery: the sample is dropped and nothing else changes.
	ErrInvalidSampleOrdering = &kindError{"invalid_sample_ordering", "zero or negative time between samples"}

	// ErrInvalidCoordinates rejects a sample with out-of-range coordinates.
	ErrInvalidCoordinates = &kindError{"invalid_coordinates", "invalid coordinates"}

	// ErrInactive is returned for samples arriving while the tracker isn't armed,
	// eg. after a stop and before the next Start.
	ErrInactive = &kindError{"inactive", "tracker is not active"}

	// ErrNoCurrentPosition is what a source returns when it has no last-known fix.
	// Start treats it as "nothing to seed with", not as a failure.
	ErrNoCurrentPosition = &kindError{"no_current_position", "no current position available"}
)

// SettingsResolutionError means the device's location settings need changing before
// updates can flow. Resolution describes how to launch the fix, eg. a settings URI.
type SettingsResolutionError struct {
	Resolution string
	Err        error
}

func (e *SettingsResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location settings require resolution (%s): %v", e.Resolution, e.Err)
	}
	return fmt.Sprintf("location settings require resolution (%s)", e.Resolution)
}

func (e *SettingsResolutionError) Unwrap() error     { return e.Err }
func (e *SettingsResolutionError) ErrorKind() string { return "settings_resolution_required" }

// UpstreamError wraps any other failure of the position source.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string     { return fmt.Sprintf("position source: %v", e.Err) }
func (e *UpstreamError) Unwrap() error     { return e.Err }
func (e *UpstreamError) ErrorKind() string { return "upstream" }
