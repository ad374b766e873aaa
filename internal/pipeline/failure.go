package pipeline

import (
	"errors"
	"io/fs"

	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

// Reasons a notice is skipped, used as the summarize_errors_total label.
const (
	reasonInvalidNotice = "invalid_notice"
	reasonMissingVolume = "missing_volume"
	reasonRejectedPath  = "rejected_path"
	reasonReadError     = "read_error"
	reasonUnreadable    = "unreadable_volume"
)

// classify names why a notice could not be summarized and whether another
// attempt could succeed. Only storage read failures are retryable: a missing
// file, a rejected path or a malformed volume fails the same way every time.
func classify(err error) (reason string, retryable bool) {
	var readErr *radar.UnderlyingReadError
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, domain.ErrInvalidNotice), errors.Is(err, ErrUnknownConvention):
		return reasonInvalidNotice, false
	case errors.Is(err, fs.ErrNotExist):
		return reasonMissingVolume, false
	case errors.Is(err, fs.ErrPermission):
		return reasonRejectedPath, false
	case errors.As(err, &readErr), errors.As(err, &pathErr):
		return reasonReadError, true
	default:
		return reasonUnreadable, false
	}
}
