package domain

import "errors"

var (
	ErrPermissionDenied    = errors.New("microphone permission denied")
	ErrDeviceUnavailable   = errors.New("no audio input device available")
	ErrEncodingUnsupported = errors.New("no supported audio encoding")
	ErrEncoderFailed       = errors.New("audio encoder failed")
	ErrNetworkFailure      = errors.New("analysis service request failed")
	ErrPlaybackFailure     = errors.New("audio playback failed")
)

// CodeOf maps an error onto the user-facing error taxonomy.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermissionDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return ErrorCodeDeviceUnavailable
	case errors.Is(err, ErrEncodingUnsupported):
		return ErrorCodeEncodingUnsupported
	case errors.Is(err, ErrEncoderFailed):
		return ErrorCodeEncoderFailed
	case errors.Is(err, ErrNetworkFailure):
		return ErrorCodeNetworkFailure
	case errors.Is(err, ErrPlaybackFailure):
		return ErrorCodePlaybackFailure
	default:
		return ErrorCodeUnknown
	}
}
