package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GetRun(ctx context.Context, id string) (*models.GenerationRun, error)
	BatchTimetable(ctx context.Context, batchID string) (*dto.TimetableView, error)
	FacultyTimetable(ctx context.Context, facultyID string) (*dto.TimetableView, error)
}

// TimetableHandler exposes generation and timetable read endpoints.
type TimetableHandler struct {
	service timetableGenerator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate timetables for batches
// @Description Existing entries of the requested batches are replaced. Hours that cannot be placed are listed in the report.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Status == models.GenerationRunQueued {
		response.Accepted(c, result)
		return
	}
	meta := map[string]interface{}{"partial": result.Report != nil && result.Report.Partial()}
	response.JSON(c, http.StatusOK, result, meta)
}

// GetRun godoc
// @Summary Get a generation run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// BatchTimetable godoc
// @Summary Get a batch timetable
// @Tags Timetable
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/batches/{id} [get]
func (h *TimetableHandler) BatchTimetable(c *gin.Context) {
	view, err := h.service.BatchTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, map[string]interface{}{"total": len(view.Entries)})
}

// FacultyTimetable godoc
// @Summary Get a lecturer timetable
// @Tags Timetable
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/faculty/{id} [get]
func (h *TimetableHandler) FacultyTimetable(c *gin.Context) {
	view, err := h.service.FacultyTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, map[string]interface{}{"total": len(view.Entries)})
}
