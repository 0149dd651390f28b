package wiki

import (
	"errors"
	"fmt"
)

var (
	// ErrNotJSON reports a response body that could not be decoded.
	ErrNotJSON = errors.New("response is not valid json")
	// ErrUnexpectedPayload reports JSON that lacks the keys an action returns.
	ErrUnexpectedPayload = errors.New("unexpected api payload")
	// ErrMissingPage reports a query for a title with no page.
	ErrMissingPage = errors.New("page is missing")
	// ErrNoRevisions reports an existing page that returned no revisions.
	ErrNoRevisions = errors.New("page has no revisions")
)

// APIError is the error object returned by the remote API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// IsAPIError reports whether err carries an API-level error object.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
