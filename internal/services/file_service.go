package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/internal/storage"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/logger"
	"github.com/charlesng35/fileadmin/pkg/metrics"
)

const (
	// DefaultMaxUploadSize caps a single uploaded file at 100 MB.
	DefaultMaxUploadSize int64 = 100 << 20
	// DefaultUploadPrefix is the storage key prefix for uploaded files.
	DefaultUploadPrefix = "uploads"

	UploadStatusComplete = "complete"
	UploadStatusPartial  = "partial"

	sniffLength = 3072
)

// DefaultAllowedExtensions lists the accepted upload extensions.
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "mp4"}

var errFileTooLarge = errors.New("file exceeds the maximum upload size")

// uploadRejection is a client-facing reason for rejecting one upload item.
type uploadRejection string

func (r uploadRejection) Error() string { return string(r) }

const (
	rejectInvalidFile uploadRejection = "Each item must be a valid file."
	rejectStoreFailed uploadRejection = "The file could not be stored."
)

// UploadPolicy bounds what FileService.Upload accepts.
type UploadPolicy struct {
	MaxFileSize       int64
	AllowedExtensions []string
	KeyPrefix         string
}

// UploadItem is one file of an upload batch. Open is called at most once.
type UploadItem struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadFailure reports why a single batch item was rejected.
type UploadFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// UploadResult holds the outcome of a batch upload.
type UploadResult struct {
	Files    []models.File
	Failures []UploadFailure
}

// Status reports whether every item was stored.
func (r *UploadResult) Status() string {
	if r == nil || len(r.Failures) > 0 {
		return UploadStatusPartial
	}
	return UploadStatusComplete
}

// FileListOptions controls filtering and pagination for file listing.
type FileListOptions struct {
	PageRequest
	Search string
	Mime   string
}

// FileService stores uploaded files and enforces ownership on every access.
type FileService struct {
	db           *gorm.DB
	storage      storage.Storage
	auditService *AuditService
	policy       UploadPolicy
	allowed      map[string]struct{}
	now          func() time.Time
}

// NewFileService constructs a FileService bound to the provided storage backend.
func NewFileService(db *gorm.DB, store storage.Storage, audit *AuditService, policy UploadPolicy) (*FileService, error) {
	if db == nil {
		return nil, errors.New("file service: db is required")
	}
	if store == nil {
		return nil, errors.New("file service: storage is required")
	}

	if policy.MaxFileSize <= 0 {
		policy.MaxFileSize = DefaultMaxUploadSize
	}
	if len(policy.AllowedExtensions) == 0 {
		policy.AllowedExtensions = DefaultAllowedExtensions
	}
	policy.KeyPrefix = strings.Trim(strings.TrimSpace(policy.KeyPrefix), "/")
	if policy.KeyPrefix == "" {
		policy.KeyPrefix = DefaultUploadPrefix
	}

	allowed := make(map[string]struct{}, len(policy.AllowedExtensions))
	for _, ext := range policy.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	// Content sniffing reports JPEG as jpg.
	if _, ok := allowed["jpeg"]; ok {
		allowed["jpg"] = struct{}{}
	}

	return &FileService{
		db:           db,
		storage:      store,
		auditService: audit,
		policy:       policy,
		allowed:      allowed,
		now:          time.Now,
	}, nil
}

// Policy returns the effective upload policy.
func (s *FileService) Policy() UploadPolicy {
	return s.policy
}

// Upload stores each item independently on behalf of owner. Items that fail are
// reported in the result; when nothing was stored ErrUploadFailed is returned
// together with the result.
func (s *FileService) Upload(ctx context.Context, owner *models.User, items []UploadItem) (*UploadResult, error) {
	ctx = ensureContext(ctx)

	if decision := permissions.Authorize(owner, permissions.ManageFiles); !decision.Allowed {
		return nil, decision.Err()
	}
	if len(items) == 0 {
		return nil, apperrors.NewValidation("files", "At least one file is required.")
	}

	result := &UploadResult{}
	for _, item := range items {
		file, err := s.storeItem(ctx, owner.ID, item)
		if err != nil {
			metrics.FileUploads.WithLabelValues("failure").Inc()
			var rejection uploadRejection
			if !errors.As(err, &rejection) {
				logger.WithModule("files").Error("upload failed", zap.String("file", item.Filename), zap.Error(err))
				rejection = rejectStoreFailed
			}
			result.Failures = append(result.Failures, UploadFailure{File: item.Filename, Error: rejection.Error()})
			continue
		}
		metrics.FileUploads.WithLabelValues("success").Inc()
		metrics.FileUploadBytes.Add(float64(file.Size))
		result.Files = append(result.Files, *file)
	}

	names := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		names = append(names, f.Name)
	}
	outcome := auditSuccess
	if len(result.Files) == 0 {
		outcome = auditFailure
	}
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "file.upload",
		Resource: "files",
		Result:   outcome,
		Metadata: map[string]any{
			"stored": names,
			"failed": len(result.Failures),
		},
	})

	if len(result.Files) == 0 {
		return result, ErrUploadFailed
	}
	return result, nil
}

func (s *FileService) storeItem(ctx context.Context, ownerID string, item UploadItem) (*models.File, error) {
	name := filepath.Base(strings.TrimSpace(strings.ReplaceAll(item.Filename, "\\", "/")))
	if name == "" || name == "." || name == "/" || item.Open == nil {
		return nil, rejectInvalidFile
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !s.extensionAllowed(ext) {
		return nil, s.rejectType()
	}
	if item.Size > s.policy.MaxFileSize {
		return nil, s.rejectSize()
	}

	src, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, rejectInvalidFile
	}

	detected := mimetype.Detect(head)
	if !s.extensionAllowed(strings.TrimPrefix(detected.Extension(), ".")) {
		return nil, s.rejectType()
	}

	key := fmt.Sprintf("%s/%d_%s.%s", s.policy.KeyPrefix, s.now().Unix(), uuid.NewString(), ext)
	body := &limitedReader{r: io.MultiReader(bytes.NewReader(head), src), remaining: s.policy.MaxFileSize}

	if err := s.storage.Put(ctx, key, body, item.Size, detected.String()); err != nil {
		if errors.Is(err, errFileTooLarge) {
			return nil, s.rejectSize()
		}
		return nil, fmt.Errorf("store upload: %w", err)
	}

	file := &models.File{
		UserID:   ownerID,
		Name:     name,
		MimeType: detected.String(),
		Size:     body.read,
		Path:     key,
		Disk:     s.storage.Name(),
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
			logger.WithModule("files").Warn("failed to remove orphaned upload", zap.String("path", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("save file record: %w", err)
	}

	return file, nil
}

func (s *FileService) rejectType() uploadRejection {
	return uploadRejection("Each file must be one of: " + strings.Join(s.policy.AllowedExtensions, ", ") + ".")
}

func (s *FileService) rejectSize() uploadRejection {
	return uploadRejection("Each file must not be larger than " + models.FormatBytes(s.policy.MaxFileSize) + ".")
}

func (s *FileService) extensionAllowed(ext string) bool {
	_, ok := s.allowed[ext]
	return ok
}

// List returns the files visible to principal: every file for the override
// role, otherwise only the principal's own files.
func (s *FileService) List(ctx context.Context, principal *models.User, opts FileListOptions) ([]models.File, int64, error) {
	ctx = ensureContext(ctx)

	if decision := permissions.Authorize(principal, permissions.ManageFiles); !decision.Allowed {
		return nil, 0, decision.Err()
	}
	_, perPage := opts.Normalise()

	query := s.db.WithContext(ctx).Model(&models.File{})
	if scope := permissions.OwnershipScope(principal); !scope.All {
		query = query.Where("user_id = ?", scope.OwnerID)
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(search))
	}
	if mime := strings.TrimSpace(opts.Mime); mime != "" {
		query = query.Where("mime = ?", mime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("file service: count files: %w", err)
	}

	var files []models.File
	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset(opts.offset()).
		Limit(perPage).
		Find(&files).Error; err != nil {
		return nil, 0, fmt.Errorf("file service: list files: %w", err)
	}

	return files, total, nil
}

// Get loads a file and checks that principal may access it.
func (s *FileService) Get(ctx context.Context, principal *models.User, id string) (*models.File, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrFileNotFound
	}

	var file models.File
	err := s.db.WithContext(ctx).Preload("User").First(&file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file service: load file: %w", err)
	}

	decision := permissions.AuthorizeResource(principal, permissions.ManageFiles, file)
	if !decision.Allowed {
		metrics.PermissionChecks.WithLabelValues(permissions.ManageFiles, "deny").Inc()
		return nil, decision.Err()
	}
	return &file, nil
}

// Open returns the file and a reader over its stored bytes. Callers must close the reader.
func (s *FileService) Open(ctx context.Context, principal *models.User, id string) (*models.File, io.ReadCloser, error) {
	file, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.storage.Get(ensureContext(ctx), file.Path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrStoredFileMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("file service: open stored file: %w", err)
	}
	return file, reader, nil
}

// Delete removes the record of a file principal may access, then its stored
// bytes. A record never outlives its bytes; orphaned bytes are only logged.
func (s *FileService) Delete(ctx context.Context, principal *models.User, id string) error {
	ctx = ensureContext(ctx)

	file, err := s.Get(ctx, principal, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.File{}, "id = ?", file.ID)
		if result.Error != nil {
			return fmt.Errorf("file service: delete file: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrFileNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	purgeStoredFiles(ctx, s.storage, []models.File{*file})

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "file.delete",
		Resource: file.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"name":  file.Name,
			"owner": file.UserID,
		},
	})

	return nil
}

// purgeStoredFiles removes stored bytes for files whose records are already gone.
// Failures are logged and skipped.
func purgeStoredFiles(ctx context.Context, store storage.Storage, files []models.File) {
	if store == nil || len(files) == 0 {
		return
	}
	log := logger.WithModule("files")
	for _, file := range files {
		if file.Disk != "" && file.Disk != store.Name() {
			log.Warn("stored file left on unconfigured disk", zap.String("disk", file.Disk), zap.String("path", file.Path))
			continue
		}
		if err := store.Delete(ctx, file.Path); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn("failed to remove stored file", zap.String("path", file.Path), zap.Error(err))
		}
	}
}

// limitedReader fails with errFileTooLarge once more than remaining bytes are read.
type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.remaining {
		return n, errFileTooLarge
	}
	return n, err
}
