package cmd

import (
	"fmt"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// FormatError renders err as one "error:" line followed by a "caused by:"
// line for each wrapped cause and a "detail:" line per recorded detail.
func FormatError(err error) string {
	var chain []error
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e)
	}

	var lines []string
	for i, e := range chain {
		msg := e.Error()
		if i+1 < len(chain) {
			next := chain[i+1].Error()
			if msg == next {
				// Wrappers that add no text of their own.
				continue
			}
			msg = strings.TrimSuffix(msg, ": "+next)
		}
		if len(lines) == 0 {
			lines = append(lines, "error: "+msg)
		} else {
			lines = append(lines, "caused by: "+msg)
		}
	}

	details := errors.AllDetails(err)
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("detail: %s=%v", k, details[k]))
	}
	return strings.Join(lines, "\n")
}
