package texvk

import "errors"

// Errors returned by texture and blitter operations. Unsupported requests
// are reported with a log record as well; callers can test for the cause
// with errors.Is.
var (
	// ErrUnsupported is returned for format, sample count or location
	// combinations that are not implemented.
	ErrUnsupported = errors.New("texvk: unsupported operation")

	// ErrMultisample is returned when uploading to or downloading from a
	// multisampled texture.
	ErrMultisample = errors.New("texvk: multisampled textures cannot be uploaded or downloaded")

	// ErrPitchAlignment is returned when a row or slice pitch is not a
	// multiple of the format's block size.
	ErrPitchAlignment = errors.New("texvk: pitch is not aligned to the format block size")

	// ErrFormatMismatch is returned when the data format differs from the
	// texture format.
	ErrFormatMismatch = errors.New("texvk: format does not match texture format")

	// ErrInvalidLocation is returned for locations a texture cannot hold.
	ErrInvalidLocation = errors.New("texvk: invalid location")

	// ErrNotAllocated is returned when an operation needs the GPU image
	// before it was prepared.
	ErrNotAllocated = errors.New("texvk: texture image is not allocated")

	// ErrDestroyed is returned when using a destroyed texture.
	ErrDestroyed = errors.New("texvk: texture has been destroyed")

	// ErrInvalidDesc is returned for malformed texture or view descriptions.
	ErrInvalidDesc = errors.New("texvk: invalid description")

	// ErrOutOfRange is returned for subresource indices and boxes outside
	// the texture.
	ErrOutOfRange = errors.New("texvk: out of range")

	// ErrNoBlitter is returned when no blitter in a chain accepted a request.
	ErrNoBlitter = errors.New("texvk: no blitter accepted the request")
)
