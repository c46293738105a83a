package audio

import "errors"

// ErrDeviceUnavailable marks a capture or playback device that could not be
// acquired. Fatal to session start, recoverable by user action.
var ErrDeviceUnavailable = errors.New("audio device unavailable")
