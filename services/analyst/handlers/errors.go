// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/AleutianAI/AleutianResearch/services/analysis"
)

// statusForEngineError maps the engine's error taxonomy onto HTTP
// status codes.
//
// # Description
//
// Invalid model is the caller's mistake (400), no resolvable queries is
// a semantically unprocessable request (422), a prompt over the model
// window is a payload problem (413), and a failed backend call is an
// upstream fault (502). Anything else returns 500 with a generic
// message so internal details never reach clients.
func statusForEngineError(err error) (int, string) {
	switch {
	case analysis.IsInvalidModel(err):
		return http.StatusBadRequest, err.Error()
	case analysis.IsNoQueries(err):
		return http.StatusUnprocessableEntity, err.Error()
	case analysis.IsContextTooLarge(err):
		return http.StatusRequestEntityTooLarge, err.Error()
	case analysis.IsExternalCall(err):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
