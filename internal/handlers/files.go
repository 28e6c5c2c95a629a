package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/services"
	appErrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// FileHandler exposes upload, listing, download and deletion of files.
type FileHandler struct {
	files *services.FileService
}

func NewFileHandler(files *services.FileService) *FileHandler {
	return &FileHandler{files: files}
}

type fileView struct {
	models.File
	FormattedSize string `json:"formatted_size"`
	URL           string `json:"url"`
}

type uploadResponse struct {
	Status   string                   `json:"status"`
	Files    []fileView               `json:"files"`
	Failures []services.UploadFailure `json:"failures"`
}

func newFileView(file models.File) fileView {
	return fileView{
		File:          file,
		FormattedSize: file.FormattedSize(),
		URL:           "/api/files/" + file.ID + "/download",
	}
}

func newFileViews(files []models.File) []fileView {
	views := make([]fileView, 0, len(files))
	for _, file := range files {
		views = append(views, newFileView(file))
	}
	return views
}

// GET /api/files
func (h *FileHandler) List(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	opts := services.FileListOptions{
		PageRequest: pageRequest(c),
		Search:      strings.TrimSpace(c.Query("search")),
		Mime:        strings.TrimSpace(c.Query("mime")),
	}

	files, total, err := h.files.List(requestContext(c), user, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, newFileViews(files), listMeta(opts.PageRequest, total))
}

// POST /api/files/upload
//
// Accepts a multipart form with one or more parts named "files[]" (or "files").
// Each part is stored independently; a batch with at least one stored file
// answers 201 and lists the rejected parts under failures.
func (h *FileHandler) Upload(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid multipart payload"))
		return
	}

	headers := append(form.File["files[]"], form.File["files"]...)
	if len(headers) == 0 {
		response.Error(c, appErrors.NewValidation("files", "At least one file is required."))
		return
	}

	items := make([]services.UploadItem, 0, len(headers))
	for _, header := range headers {
		items = append(items, uploadItem(header))
	}

	result, err := h.files.Upload(requestContext(c), user, items)
	if err != nil {
		if errors.Is(err, services.ErrUploadFailed) && result != nil {
			response.ErrorWithData(c, err, uploadResponse{
				Status:   result.Status(),
				Files:    []fileView{},
				Failures: result.Failures,
			})
			return
		}
		response.Error(c, err)
		return
	}

	failures := result.Failures
	if failures == nil {
		failures = []services.UploadFailure{}
	}
	message := fmt.Sprintf("%d file(s) uploaded successfully.", len(result.Files))
	response.SuccessWithMessage(c, http.StatusCreated, message, uploadResponse{
		Status:   result.Status(),
		Files:    newFileViews(result.Files),
		Failures: failures,
	})
}

func uploadItem(header *multipart.FileHeader) services.UploadItem {
	return services.UploadItem{
		Filename: header.Filename,
		Size:     header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

// GET /api/files/:id
func (h *FileHandler) Get(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	file, err := h.files.Get(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newFileView(*file))
}

// GET /api/files/:id/download
func (h *FileHandler) Download(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	file, reader, err := h.files.Open(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.Name})
	if disposition == "" {
		disposition = "attachment"
	}

	c.DataFromReader(http.StatusOK, file.Size, contentType, reader, map[string]string{
		"Content-Disposition": disposition,
	})
}

// DELETE /api/files/:id
func (h *FileHandler) Delete(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	if err := h.files.Delete(requestContext(c), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "File deleted successfully.", nil)
}
