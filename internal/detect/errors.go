package detect

import "errors"

// ErrModelNotFound indicates the configured weights file does not exist.
// Jobs fail immediately; there is nothing to retry until the model volume
// is fixed.
var ErrModelNotFound = errors.New("detection model not found")
