package uploads

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/auth"
)

const (
	msgParamsRequired = "filename and filetype query parameters are required"
	msgNotConfigured  = "Server configuration error for S3 uploads."
	msgPresignFailed  = "Could not generate S3 upload URL."
)

// UploadURLResponse is returned by GET /posts/signed-url/upload.
type UploadURLResponse struct {
	UploadURL string `json:"uploadURL" example:"https://bucket.s3.eu-west-1.amazonaws.com/uploads/..."`
	Key       string `json:"key" example:"uploads/01920c4e/4f1c2b9e-8d7a-4b61-9f3e-2c1a7d5e9b10.png"`
}

// Handler serves presigned upload URLs. A nil presigner means storage is not configured.
type Handler struct {
	presigner Presigner
	newID     func() uuid.UUID
}

func NewHandler(presigner Presigner) *Handler {
	return &Handler{presigner: presigner, newID: uuid.New}
}

// ObjectKey builds `uploads/<subject>/<id>.<ext>` keeping the extension of filename.
// A filename without an extension yields a key without a trailing dot.
func ObjectKey(subject, filename string, id uuid.UUID) string {
	key := "uploads/" + subject + "/" + id.String()
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		key += "." + filename[i+1:]
	}
	return key
}

// HandleUploadURL godoc
// @Summary Presigned upload URL
// @Description Returns a URL the client can PUT the file to, and the object key to store in selectedFile.
// @Tags Posts
// @Produce json
// @Param filename query string true "Original file name"
// @Param filetype query string true "MIME type of the file"
// @Success 200 {object} uploads.UploadURLResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 500 {object} apperror.ErrorResponse
// @Router /posts/signed-url/upload [get]
// @Security BearerAuth
func (h *Handler) HandleUploadURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filename, filetype := q.Get("filename"), q.Get("filetype")
		if filename == "" || filetype == "" {
			auth.WriteError(w, r, apperror.NewBadRequestError(msgParamsRequired, nil))
			return
		}
		if h.presigner == nil {
			auth.WriteError(w, r, apperror.NewConfigError(msgNotConfigured, nil))
			return
		}

		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			auth.WriteError(w, r, apperror.NewAuthError("Unauthenticated", nil))
			return
		}

		key := ObjectKey(id.SubjectID, filename, h.newID())
		url, err := h.presigner.PresignPut(r.Context(), key, filetype)
		if err != nil {
			auth.WriteError(w, r, apperror.NewExternalServiceError(msgPresignFailed, err))
			return
		}

		logrus.WithFields(logrus.Fields{"key": key, "content_type": filetype}).Debug("presigned upload url issued")
		auth.WriteJSON(w, http.StatusOK, UploadURLResponse{UploadURL: url, Key: key})
	}
}
