package commerce

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolError is returned when a response lacks the shape an operation expects,
// e.g. a mutation that carries neither its payload nor user errors.
type ProtocolError struct {
	Operation string
	Expected  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape, expected %s", e.Operation, e.Expected)
}

// UserError is one user-level error returned by a mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

// UserErrors is returned when a mutation reports user-level errors.
type UserErrors struct {
	Operation string
	Errors    []UserError
}

func (e *UserErrors) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		msg := ue.Message
		if len(ue.Field) > 0 {
			msg = strings.Join(ue.Field, ".") + ": " + msg
		}
		if ue.Code != "" {
			msg += " (" + ue.Code + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, strings.Join(msgs, "; "))
}

// GraphQLError is returned for top-level GraphQL errors such as throttling or
// malformed queries.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: graphql errors: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsProtocolError reports whether err is a response shape violation or carries user errors.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	var ue *UserErrors
	return errors.As(err, &pe) || errors.As(err, &ue)
}
