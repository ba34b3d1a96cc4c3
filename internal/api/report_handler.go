package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/middleware"
	"github.com/dsvrelay/dsv-relay/internal/report"
)

const (
	photoField = "photo"
	// formOverhead is the allowance for text fields and multipart framing on top of the photo.
	formOverhead = 1 << 20

	msgPhotoTooLarge  = "Foto troppo grande"
	msgBadRequest     = "Richiesta non valida"
	msgDeliveryFailed = "Errore invio segnalazione"
)

type ReportHandler struct {
	svc       *report.Service
	maxUpload func() int64
	logger    *zap.Logger
}

func NewReportHandler(svc *report.Service, maxUpload func() int64, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// Submit handles POST /api/report.
func (h *ReportHandler) Submit(c *gin.Context) {
	limit := h.maxUpload()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)

	if err := c.Request.ParseMultipartForm(limit + formOverhead); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgPhotoTooLarge})
			return
		}
		h.logger.Warn("unreadable report form", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}

	sub := report.Submission{
		Name:        c.PostForm("name"),
		Email:       c.PostForm("email"),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		Lat:         c.PostForm("lat"),
		Lon:         c.PostForm("lon"),
		Accuracy:    c.PostForm("accuracy"),
		Timestamp:   c.PostForm("timestamp"),
	}

	photo, err := readPhoto(c, limit)
	switch {
	case errors.Is(err, errPhotoTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgPhotoTooLarge})
		return
	case err != nil:
		h.logger.Warn("unreadable photo upload", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}
	sub.Photo = photo

	receipt, err := h.svc.Submit(c.Request.Context(), sub)
	if err != nil {
		var verr *report.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgDeliveryFailed})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "practiceCode": receipt.Code.String()})
}

var errPhotoTooLarge = errors.New("photo exceeds upload limit")

// readPhoto returns nil without error when no photo was sent; validation reports that case.
func readPhoto(c *gin.Context, limit int64) (*report.Photo, error) {
	fh, err := c.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fh.Size > limit {
		return nil, errPhotoTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errPhotoTooLarge
	}
	return &report.Photo{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
