package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruby4mag/firewatch-backend/internal/ai"
	"github.com/ruby4mag/firewatch-backend/internal/db"
	"github.com/ruby4mag/firewatch-backend/internal/events"
	"github.com/ruby4mag/firewatch-backend/internal/imaging"
	"github.com/ruby4mag/firewatch-backend/internal/storage"
)

const HomeMessage = "🔥 Fire Detection API is running!"

// Detector runs the enabled models on one uploaded image.
type Detector interface {
	Run(ctx context.Context, raw []byte) (ai.Results, error)
}

// Handler serves the fire detection API. Store and Uploader may be nil when
// persistence is disabled.
type Handler struct {
	detector    Detector
	store       db.Store
	uploader    storage.Uploader
	publisher   events.Publisher
	persistence bool
	maxUpload   int64
}

type Options struct {
	Detector  Detector
	Store     db.Store
	Uploader  storage.Uploader
	Publisher events.Publisher
	// Persistence turns on photo upload, report storage and the report routes.
	Persistence bool
	// MaxUploadBytes caps the /predict request body.
	MaxUploadBytes int64
}

func NewHandler(o Options) (*Handler, error) {
	if o.Detector == nil {
		return nil, errors.New("handlers: detector is required")
	}
	if o.Persistence && (o.Store == nil || o.Uploader == nil) {
		return nil, errors.New("handlers: persistence needs a store and an uploader")
	}
	if o.Publisher == nil {
		o.Publisher = events.NopPublisher{}
	}
	return &Handler{
		detector:    o.Detector,
		store:       o.Store,
		uploader:    o.Uploader,
		publisher:   o.Publisher,
		persistence: o.Persistence,
		maxUpload:   o.MaxUploadBytes,
	}, nil
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(RequestID())

	r.GET("/", h.Home)
	r.POST("/predict", h.Predict)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !h.persistence {
		return
	}
	r.GET("/get_reports", h.GetReports)
	r.GET("/get_report/:id", h.GetReport)
	r.PUT("/update_report/:id", h.UpdateReport)
	r.DELETE("/delete_report/:id", h.DeleteReport)
}

func (h *Handler) Home(c *gin.Context) {
	c.String(http.StatusOK, HomeMessage)
}

// badRequest marks an error caused by the client's input.
type badRequest struct {
	msg string
}

func (e badRequest) Error() string { return e.msg }

// fail maps err to a status code and writes {"error": msg}. Every failure is
// logged here once.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, err.Error()

	var br badRequest
	var de *imaging.DecodeError
	switch {
	case errors.As(err, &br), errors.As(err, &de):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		status, msg = http.StatusNotFound, "Report not found"
	}

	entry := Logger(c).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	c.JSON(status, gin.H{"error": msg})
}

// Logger returns the request-scoped log entry set by RequestID.
func Logger(c *gin.Context) log.Interface {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(log.Interface); ok {
			return l
		}
	}
	return log.Log
}
