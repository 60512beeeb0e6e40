// Package options defines the generic options interface shared by all
// component option types.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions defines methods to implement a generic options type.
type IOptions interface {
	// Validate validates all the required options.
	// It can also be used to complete options if needed.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join concatenates prefixes with "." and appends a trailing "." when
// non-empty, producing flag names like "milvus.address" or
// "prefix.milvus.address".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}
