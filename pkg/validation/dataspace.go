// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"regexp"
)

// dataSpacePattern matches data space labels: alphanumeric start,
// then letters, digits, dots, underscores, and hyphens. Capped at 128
// characters to match the stored property width.
var dataSpacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// ValidateDataSpace reports whether a data space label is safe to use
// in a Weaviate where filter and as a stored document property. The
// empty label means the shared space and is handled by callers, so it
// is rejected here.
func ValidateDataSpace(dataSpace string) error {
	if dataSpace == "" {
		return fmt.Errorf("data space cannot be empty")
	}

	if !dataSpacePattern.MatchString(dataSpace) {
		return fmt.Errorf("invalid data space: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", dataSpace)
	}

	return nil
}
