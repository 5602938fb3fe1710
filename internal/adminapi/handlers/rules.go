package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dnsrouter/internal/adminapi/models"
	"dnsrouter/internal/config"
)

// Validate godoc
// @Summary Validate a rule file
// @Description Parses and validates a rule file without reloading it into the running engine. Defaults to the configured rules.path when the request body omits one.
// @Tags rules
// @Accept json
// @Produce json
// @Param request body models.ValidateRequest false "rule file to validate"
// @Success 200 {object} models.ValidateResponse
// @Router /rules/validate [post]
func (h *Handler) Validate(c *gin.Context) {
	var req models.ValidateRequest
	_ = c.ShouldBindJSON(&req)

	path := req.Path
	if path == "" && h.cfg != nil {
		path = h.cfg.Rules.Path
	}
	if path == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "no rule file path configured or supplied"})
		return
	}

	table, err := config.LoadRuleTable(path)
	if err != nil {
		c.JSON(http.StatusOK, models.ValidateResponse{Valid: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ValidateResponse{Valid: true, RuleCount: len(table.Rules)})
}
