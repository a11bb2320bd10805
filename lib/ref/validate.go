// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"regexp"
)

// idPattern matches the opaque identifiers used throughout the wire
// protocol: ASCII letters, digits, dot, dash, underscore, colon. Colon
// is allowed so UUIDs and prefixed IDs (e.g., "replica:us-east-1a")
// both validate.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,256}$`)

func validateID(kind, value string) error {
	if value == "" {
		return fmt.Errorf("invalid %s: empty", kind)
	}
	if !idPattern.MatchString(value) {
		return fmt.Errorf("invalid %s %q: must match %s", kind, value, idPattern.String())
	}
	return nil
}
