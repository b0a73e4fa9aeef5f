package audio

import (
	"bytes"
	"fmt"
	"strings"

	"fieldmic/internal/domain"
)

var permissionMarkers = []string{
	"permission denied",
	"access denied",
	"operation not permitted",
	"access to the device",
}

// classifyCaptureError maps ffmpeg's stderr output onto the capture error taxonomy.
// Anything that is not a permission problem counts as an unavailable device.
func classifyCaptureError(cause error, stderr string) error {
	detail := stringsTrimSpaceSafe(stderr)
	lower := strings.ToLower(detail)

	sentinel := domain.ErrDeviceUnavailable
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			sentinel = domain.ErrPermissionDenied
			break
		}
	}

	switch {
	case cause != nil && detail != "":
		return fmt.Errorf("%w: %v: %s", sentinel, cause, detail)
	case cause != nil:
		return fmt.Errorf("%w: %v", sentinel, cause)
	case detail != "":
		return fmt.Errorf("%w: %s", sentinel, detail)
	default:
		return sentinel
	}
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
