package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/ruby4mag/firewatch-backend/internal/alarm"
	"github.com/ruby4mag/firewatch-backend/internal/events"
	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// Predict classifies an uploaded photo and, with persistence on, stores it
// as a new report. The response is the report either way.
func (h *Handler) Predict(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	raw, err := readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	meta := models.Metadata{
		GeotagLocation: c.PostForm("geotag_location"),
		CauseOfFire:    c.PostForm("cause_of_fire"),
		ReporterName:   c.PostForm("user_name"),
		ReporterID:     c.PostForm("user_id"),
		StructureCount: alarm.ParseCount(c.PostForm("number_of_structures_on_fire")),
	}

	ctx := c.Request.Context()
	results, err := h.detector.Run(ctx, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.persistence {
		url, err := h.uploader.Upload(ctx, raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		meta.PhotoURL = url
	}

	report := models.NewFireReport(results, meta, time.Now())
	if h.persistence {
		id, err := h.store.Create(ctx, &report)
		if err != nil {
			h.fail(c, err)
			return
		}
		events.Notify(ctx, h.publisher, events.ReportCreated, id, &report)
	}

	Logger(c).WithFields(log.Fields{
		"report_id":   report.ID,
		"alarm_level": report.AlarmLevel,
	}).Info("prediction served")
	c.JSON(http.StatusOK, report)
}

func readImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, badRequest{fmt.Sprintf("image exceeds the %d byte upload limit", tooBig.Limit)}
		}
		return nil, badRequest{"No image uploaded"}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded image: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read uploaded image: %w", err)
	}
	if len(raw) == 0 {
		return nil, badRequest{"No image uploaded"}
	}
	return raw, nil
}
