package lenssdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoBaseURL  = errors.New("sdk: no base url could be resolved")
	ErrBadBaseURL = errors.New("sdk: base url is not a valid absolute url")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Repo errors
	CodeRepoNotScanned  = "E_REPO_NOT_SCANNED"  // no scan has completed yet
	CodeFileNotFound    = "E_FILE_NOT_FOUND"    // the requested file is not in the index
	CodeRescanInFlight  = "E_RESCAN_IN_FLIGHT"  // a rescan is already running
	CodeInvalidSettings = "E_INVALID_SETTINGS"  // the settings update did not validate
)

// ErrorKind classifies a TransportError per failure mode.
type ErrorKind int

const (
	// ErrKindNetwork means the request never produced an HTTP response.
	ErrKindNetwork ErrorKind = iota
	// ErrKindStatus means the server answered with a non-2xx status.
	ErrKindStatus
	// ErrKindDecode means the response body could not be decoded.
	ErrKindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNetwork:
		return "network"
	case ErrKindStatus:
		return "status"
	case ErrKindDecode:
		return "decode"
	default:
		return fmt.Sprintf("???(%d)", int(k))
	}
}

// TransportError is the single error type surfaced by the transport client.
// It is never retried at this layer; retry policy lives in the query cache.
type TransportError struct {
	Kind       ErrorKind
	Op         string // the operation that failed, e.g. "status"
	StatusCode int    // set for ErrKindStatus
	Code       string // backend error code, if the server sent one
	Message    string // backend error message, if the server sent one
	cause      error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case ErrKindStatus:
		if e.Code != "" {
			return fmt.Sprintf("sdk: %s: http %d: %s - %s", e.Op, e.StatusCode, e.Code, e.Message)
		}
		return fmt.Sprintf("sdk: %s: http %d", e.Op, e.StatusCode)
	case ErrKindDecode:
		return fmt.Sprintf("sdk: %s: decode response: %v", e.Op, e.cause)
	default:
		return fmt.Sprintf("sdk: %s: request failed: %v", e.Op, e.cause)
	}
}

func (e *TransportError) Unwrap() error { return e.cause }

// AsTransportError unwraps err into a *TransportError if there is one.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	ok := errors.As(err, &te)
	return te, ok
}

// APIError is the structured error body the backend returns on non-2xx.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// handleAPIError converts a req response/error pair into a TransportError.
func handleAPIError(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		kind := ErrKindNetwork
		// A present response means the wire worked and decoding did not.
		if resp != nil && resp.Response != nil {
			kind = ErrKindDecode
		}
		return &TransportError{Kind: kind, Op: op, cause: requestErr}
	}

	if resp.IsErrorState() {
		te := &TransportError{
			Kind:       ErrKindStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
		}
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr != nil {
			te.Code = apiErr.Code
			te.Message = apiErr.Message
			te.cause = apiErr
		}
		return te
	}

	return nil
}
