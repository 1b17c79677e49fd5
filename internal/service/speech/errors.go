package speech

import "errors"

// ErrSynthesizerUnavailable is returned when no host synthesizer is attached.
var ErrSynthesizerUnavailable = errors.New("speech synthesizer unavailable")
