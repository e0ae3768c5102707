package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruby4mag/firewatch-backend/internal/db"
	"github.com/ruby4mag/firewatch-backend/internal/events"
	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// GetReports lists every report, newest first.
func (h *Handler) GetReports(c *gin.Context) {
	reports, err := h.store.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// MaxUpdateBodyBytes caps the JSON body of an update.
const MaxUpdateBodyBytes = 64 << 10

// UpdateReport changes the cause and/or the structure count. A new count
// re-derives the alarm level. An unknown id is a 404 whatever the body.
func (h *Handler) UpdateReport(c *gin.Context) {
	id := c.Param("id")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUpdateBodyBytes)

	var update models.ReportUpdate
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = badRequest{fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit)}
		} else {
			err = badRequest{"could not read request body"}
		}
	} else if update, err = models.ParseReportUpdate(body); err != nil {
		err = badRequest{err.Error()}
	}
	if err != nil {
		if _, gerr := h.store.Get(c.Request.Context(), id); errors.Is(gerr, db.ErrNotFound) {
			err = gerr
		}
		h.fail(c, err)
		return
	}

	report, err := h.store.Update(c.Request.Context(), id, update)
	if err != nil {
		h.fail(c, err)
		return
	}
	events.Notify(c.Request.Context(), h.publisher, events.ReportUpdated, id, report)
	c.JSON(http.StatusOK, gin.H{
		"message": "Report updated successfully",
		"report":  report,
	})
}

func (h *Handler) DeleteReport(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	events.Notify(c.Request.Context(), h.publisher, events.ReportDeleted, id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted successfully"})
}
