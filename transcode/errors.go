package transcode

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by Read and Close once the converter has been closed.
	ErrClosed = errors.New("transcode: converter closed")
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("transcode: invalid configuration")
	// ErrUnsupportedEncoding is returned when delimiters or names cannot be encoded.
	ErrUnsupportedEncoding = errors.New("transcode: unsupported encoding")
	// ErrPushbackOverflow is returned when unread bytes would exceed one chunk.
	ErrPushbackOverflow = errors.New("transcode: pushback buffer overflow")
)

// ConfigError lists every problem found while validating a Config.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Unwrap lets errors.Is match ConfigError against ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return ErrInvalidConfig
}
