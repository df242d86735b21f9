package entity

import "fmt"

// FetchErrorKind classifies why a node could not be queried.
type FetchErrorKind string

const (
	Unreachable       FetchErrorKind = "unreachable"        // Connection refused, dropped or timed out
	MalformedResponse FetchErrorKind = "malformed_response" // Node answered with something that isn't a momentum
	ProtocolError     FetchErrorKind = "protocol_error"     // Node answered with a JSON-RPC error
)

// FetchError is the failure of a single momentum query against one node.
type FetchError struct {
	Kind FetchErrorKind
	Node string
	Err  error
}

func (err *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", err.Node, err.Kind, err.Err)
}

func (err *FetchError) Unwrap() error {
	return err.Err
}
