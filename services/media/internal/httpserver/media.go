package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/response"
	"github.com/Skotchmaster/social_platform/services/media/internal/service"
)

type MediaHTTP struct {
	Svc      *service.MediaService
	MaxBytes int64
}

type uploadResponse struct {
	MediaID string `json:"mediaId"`
	URL     string `json:"url"`
}

func (h *MediaHTTP) maxBytes() int64 {
	if h.MaxBytes <= 0 {
		return service.DefaultMaxUploadBytes
	}
	return h.MaxBytes
}

func (h *MediaHTTP) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "media.upload")
	who, _ := identity.ForwardedFrom(c)

	// Leave room for the multipart envelope around the file itself.
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxBytes()+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			l.Warn("upload_rejected", "status", 400, "reason", "body too large")
			return apperr.Validation("File too large")
		}
		l.Warn("upload_rejected", "status", 400, "reason", "no file", "error", err)
		return apperr.Validation("No file found. Please add a file and try again!")
	}
	if fh.Size > h.maxBytes() {
		l.Warn("upload_rejected", "status", 400, "reason", "file too large", "size", fh.Size)
		return apperr.Validation("File too large")
	}

	f, err := fh.Open()
	if err != nil {
		l.Warn("upload_rejected", "status", 400, "reason", "unreadable file", "error", err)
		return apperr.Validation("Unreadable file")
	}
	defer f.Close()

	m, err := h.Svc.Upload(ctx, who.UserID, service.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "Media upload is successful", uploadResponse{MediaID: m.ID, URL: m.URL})
}

func (h *MediaHTTP) List(c echo.Context) error {
	items, err := h.Svc.ListMedia(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", items)
}
