package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"go-image-forensics/internal/config"
	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/logger"
	"go-image-forensics/internal/service"
	"go-image-forensics/pkg/models"
	"go-image-forensics/pkg/validation"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	uploadField     = "file"
)

// NewHandler builds the HTTP API. gatherer backs /metrics; nil falls back to
// the default Prometheus registry.
func NewHandler(svc service.ForensicService, gatherer prometheus.Gatherer, cfg *config.Config) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	validator := validation.NewUploadValidator(cfg.MaxRequestBodySize)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxRequestBodySize

	// Add middleware
	r.Use(
		requestID(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.POST("/upload", uploadImage(svc, validator, cfg))
	r.GET("/results/:filename", getResult(svc))
	r.GET("/uploads/:filename", getUpload(svc))
	r.GET("/generate_report/:filename", generateReport(svc, cfg))

	return r
}

func uploadImage(svc service.ForensicService, validator *validation.UploadValidator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		fileHeader, err := c.FormFile(uploadField)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(c, validation.ErrTooLarge(err))
				return
			}
			respondError(c, apperrors.NewValidationError("No file part", err))
			return
		}
		if fileHeader.Filename == "" {
			respondError(c, apperrors.NewValidationError("No selected file", nil))
			return
		}

		data, err := readUpload(fileHeader)
		if err != nil {
			respondError(c, apperrors.NewInternalError("failed to read upload", err))
			return
		}

		upload, err := validator.Validate(fileHeader.Filename, data)
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"filename":   upload.Name,
			"mime_type":  upload.MimeType,
			"size":       len(upload.Data),
		}).Info("Processing image upload")

		verdict, err := svc.ProcessUpload(ctx, upload.Name, upload.Data)
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":         c.GetString(requestIDKey),
			"filename":           upload.Name,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"field_errors":       len(verdict.Errors),
		}).Info("Image analysis completed")

		c.JSON(http.StatusOK, verdict)
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func getResult(svc service.ForensicService) gin.HandlerFunc {
	return func(c *gin.Context) {
		verdict, err := svc.GetResult(c.Request.Context(), c.Param("filename"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, verdict)
	}
}

func getUpload(svc service.ForensicService) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := svc.GetImage(c.Request.Context(), c.Param("filename"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
	}
}

func generateReport(svc service.ForensicService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		res, err := svc.GenerateReport(ctx, c.Param("filename"))
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"report":     res.Name,
			"location":   res.Location,
			"pages":      res.Pages,
		}).Info("Report delivered")

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Name))
		c.Data(http.StatusOK, "application/pdf", res.PDF)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			// multipart framing needs headroom above the file limit
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Stage:   apperrors.StageOf(err),
	})
}
