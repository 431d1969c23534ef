package imagecache

import "errors"

var (
	// ErrNotFound is returned when the origin reports the image does not exist.
	ErrNotFound = errors.New("image not found at origin")

	// ErrForbidden is returned when the origin refuses the request (403),
	// the dominant failure mode against third-party CDNs.
	ErrForbidden = errors.New("origin refused the request")

	// ErrUpstream is returned when the origin fails with a server error.
	ErrUpstream = errors.New("origin server error")

	// ErrTimeout is returned when an origin request exceeds the configured timeout.
	ErrTimeout = errors.New("origin request timed out")

	// ErrMalformed is returned when a payload does not carry a recognizable
	// image signature, including 200 responses whose body is an HTML error page.
	ErrMalformed = errors.New("payload is not a recognizable image")

	// ErrTooLarge is returned when the source image exceeds the size limit.
	ErrTooLarge = errors.New("source image exceeds size limit")

	// ErrStorageWrite is returned when persisting corrected bytes to the
	// object store fails. Never fatal to the request that triggered it.
	ErrStorageWrite = errors.New("object store write failed")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrEmptyParameter is returned when a required parameter is empty.
	ErrEmptyParameter = errors.New("required parameter is empty")
)

// fetchClasses are the failure classes the serving layer converts into
// negative cache entries and placeholder responses.
var fetchClasses = []error{
	ErrNotFound,
	ErrForbidden,
	ErrUpstream,
	ErrTimeout,
	ErrMalformed,
	ErrTooLarge,
}

// ClassifyFetchError maps err onto its failure class sentinel, or nil if
// err is not a classified origin failure (e.g. a cancelled context).
func ClassifyFetchError(err error) error {
	for _, class := range fetchClasses {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
