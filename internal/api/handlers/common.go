package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/services"
	"github.com/yoockh/veriview/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

// uploadSlack covers multipart framing around the clip itself.
const uploadSlack = 1 << 20

// clipFromForm opens the uploaded clip from the "video" field, accepting
// "file" as an alias. The caller closes the returned file.
func clipFromForm(c *gin.Context, op string, maxBytes int64) (multipart.File, error) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+uploadSlack)
	}
	fh, err := c.FormFile("video")
	if errors.Is(err, http.ErrMissingFile) {
		fh, err = c.FormFile("file")
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, utils.E(utils.CodeTooLarge, op, "video file is too large", utils.ErrMedia)
		}
		return nil, utils.E(utils.CodeInvalidArgument, op, "video file is required", utils.ErrMedia)
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, utils.E(utils.CodeTooLarge, op, "video file is too large", utils.ErrMedia)
	}
	return fh.Open()
}

// writeVideo streams a rendered clip, or answers 200 with the text to show
// when rendering failed.
func writeVideo(c *gin.Context, out services.VideoResult) {
	if out.Err != nil {
		c.JSON(http.StatusOK, gin.H{
			"error":         out.Err.Error(),
			"reason":        out.Err.Reason,
			"fallback_text": out.FallbackText,
		})
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.File(out.Path)
}
