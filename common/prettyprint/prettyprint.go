// Package prettyprint defines the interface for types that can render a
// human readable representation of themselves in the CLI.
package prettyprint

import (
	"context"
	"io"
)

// PrettyPrinter is an interface for types that know how to pretty
// print themselves.
type PrettyPrinter interface {
	// PrettyPrint writes a pretty-printed representation of the type
	// to the given writer, each line starting with prefix.
	PrettyPrint(ctx context.Context, prefix string, w io.Writer)
}

// ContextKeyBlock is the key to retrieve the api.BlockInfo against which
// proposal status should be rendered.
var ContextKeyBlock = contextKey("proposal/block")

type contextKey string
