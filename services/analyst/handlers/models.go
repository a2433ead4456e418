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

	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/gin-gonic/gin"
)

// HandleListModels serves GET /v1/models: the models the engine will
// accept, with their context window sizes.
func HandleListModels(registry *llm.ModelRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.NewModelsResponse(registry))
	}
}
