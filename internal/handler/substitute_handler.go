package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type substituteResolver interface {
	Substitute(ctx context.Context, absenceID string) (*dto.SubstituteResponse, error)
}

// SubstituteHandler exposes substitute resolution.
type SubstituteHandler struct {
	service substituteResolver
}

// NewSubstituteHandler constructs the handler.
func NewSubstituteHandler(svc *service.SubstituteService) *SubstituteHandler {
	return &SubstituteHandler{service: svc}
}

// Substitute godoc
// @Summary Assign a substitute for an absence
// @Description success=false with a message means nobody qualified; the absence stays pending.
// @Tags Absences
// @Produce json
// @Param id path string true "Absence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /absences/{id}/substitute [post]
func (h *SubstituteHandler) Substitute(c *gin.Context) {
	result, err := h.service.Substitute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
