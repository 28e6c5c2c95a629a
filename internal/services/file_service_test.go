package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
)

var (
	pngSignature  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegSignature = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func memoryItem(name string, content []byte) UploadItem {
	return UploadItem{
		Filename: name,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

func pngItem(name string) UploadItem {
	return memoryItem(name, pngSignature)
}

func TestFileServiceUploadPartialBatch(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	owner := svc.createUser(t, "uploader@example.com", permissions.RoleManagementFile)

	result, err := svc.files.Upload(ctx, owner, []UploadItem{
		pngItem("a.png"),
		memoryItem("notes.txt", []byte("plain text")),
		memoryItem("b.jpeg", jpegSignature),
	})
	require.NoError(t, err)
	require.Equal(t, UploadStatusPartial, result.Status())
	require.Len(t, result.Files, 2)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "notes.txt", result.Failures[0].File)
	require.Contains(t, result.Failures[0].Error, "jpg, jpeg, png, mp4")

	for _, file := range result.Files {
		require.Equal(t, owner.ID, file.UserID)
		require.True(t, strings.HasPrefix(file.Path, "uploads/"))
		require.Equal(t, "local", file.Disk)
		exists, err := svc.store.Exists(ctx, file.Path)
		require.NoError(t, err)
		require.True(t, exists)
	}
	require.Equal(t, "a.png", result.Files[0].Name)
	require.Equal(t, "image/png", result.Files[0].MimeType)
	require.Equal(t, int64(len(pngSignature)), result.Files[0].Size)
	require.Equal(t, "image/jpeg", result.Files[1].MimeType)
	require.True(t, strings.HasSuffix(result.Files[1].Path, ".jpeg"))

	var count int64
	require.NoError(t, svc.db.Model(&models.File{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestFileServiceUploadAllFail(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	owner := svc.createUser(t, "unlucky@example.com", permissions.RoleManagementFile)

	result, err := svc.files.Upload(ctx, owner, []UploadItem{
		memoryItem("fake.png", []byte("not really a png")),
		{Filename: "broken.png", Size: 10, Open: func() (io.ReadCloser, error) { return nil, errors.New("disk gone") }},
	})
	require.ErrorIs(t, err, ErrUploadFailed)
	require.NotNil(t, result)
	require.Empty(t, result.Files)
	require.Len(t, result.Failures, 2)
	require.Equal(t, string(rejectStoreFailed), result.Failures[1].Error)

	_, err = svc.files.Upload(ctx, owner, nil)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "files")
}

func TestFileServiceUploadEnforcesSize(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	small, err := NewFileService(svc.db, svc.store, svc.audit, UploadPolicy{MaxFileSize: 16})
	require.NoError(t, err)

	owner := svc.createUser(t, "big@example.com", permissions.RoleManagementFile)

	result, err := small.Upload(ctx, owner, []UploadItem{pngItem("large.png")})
	require.ErrorIs(t, err, ErrUploadFailed)
	require.Contains(t, result.Failures[0].Error, "must not be larger than")

	lying := pngItem("lying.png")
	lying.Size = 1
	result, err = small.Upload(ctx, owner, []UploadItem{lying})
	require.ErrorIs(t, err, ErrUploadFailed)
	require.Contains(t, result.Failures[0].Error, "must not be larger than")
}

func TestFileServiceUploadRequiresPermission(t *testing.T) {
	svc := newTestServices(t)

	roleManager := svc.createUser(t, "roles-only@example.com", permissions.RoleManagementUser)

	_, err := svc.files.Upload(context.Background(), roleManager, []UploadItem{pngItem("a.png")})
	require.ErrorIs(t, err, apperrors.ErrMissingPermission)

	_, err = svc.files.Upload(context.Background(), nil, []UploadItem{pngItem("a.png")})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestFileServiceOwnershipScoping(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	alice := svc.createUser(t, "alice-files@example.com", permissions.RoleManagementFile)
	bob := svc.createUser(t, "bob-files@example.com", permissions.RoleManagementFile)
	admin := svc.createUser(t, "admin-files@example.com", permissions.RoleAdmin)

	aliceUpload, err := svc.files.Upload(ctx, alice, []UploadItem{pngItem("alice.png")})
	require.NoError(t, err)
	_, err = svc.files.Upload(ctx, bob, []UploadItem{pngItem("bob.png"), pngItem("bob-2.png")})
	require.NoError(t, err)
	aliceFile := aliceUpload.Files[0]

	files, total, err := svc.files.List(ctx, alice, FileListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, aliceFile.ID, files[0].ID)

	_, total, err = svc.files.List(ctx, bob, FileListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	_, total, err = svc.files.List(ctx, admin, FileListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	_, total, err = svc.files.List(ctx, admin, FileListOptions{Search: "BOB"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	_, total, err = svc.files.List(ctx, admin, FileListOptions{Mime: "image/jpeg"})
	require.NoError(t, err)
	require.Zero(t, total)

	_, err = svc.files.Get(ctx, bob, aliceFile.ID)
	require.ErrorIs(t, err, apperrors.ErrNotOwner)

	err = svc.files.Delete(ctx, bob, aliceFile.ID)
	require.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = svc.files.Get(ctx, bob, "missing")
	require.ErrorIs(t, err, ErrFileNotFound)

	got, err := svc.files.Get(ctx, admin, aliceFile.ID)
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.UserID)
	require.NotNil(t, got.User)

	file, reader, err := svc.files.Open(ctx, alice, aliceFile.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	require.Equal(t, pngSignature, content)
	require.Equal(t, "alice.png", file.Name)

	require.NoError(t, svc.files.Delete(ctx, admin, aliceFile.ID))
	exists, err := svc.store.Exists(ctx, aliceFile.Path)
	require.NoError(t, err)
	require.False(t, exists)
	_, err = svc.files.Get(ctx, alice, aliceFile.ID)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileServiceOpenMissingBytes(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	owner := svc.createUser(t, "missing-bytes@example.com", permissions.RoleManagementFile)
	result, err := svc.files.Upload(ctx, owner, []UploadItem{pngItem("gone.png")})
	require.NoError(t, err)

	require.NoError(t, svc.store.Delete(ctx, result.Files[0].Path))

	_, _, err = svc.files.Open(ctx, owner, result.Files[0].ID)
	require.ErrorIs(t, err, ErrStoredFileMissing)
}

func TestFileServiceDeleteKeepsBytesWhenRecordSurvives(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	owner := svc.createUser(t, "keep-bytes@example.com", permissions.RoleManagementFile)
	result, err := svc.files.Upload(ctx, owner, []UploadItem{pngItem("kept.png")})
	require.NoError(t, err)
	file := result.Files[0]

	const failDelete = "test:fail_file_delete"
	require.NoError(t, svc.db.Callback().Delete().Before("gorm:delete").Register(failDelete, func(tx *gorm.DB) {
		if tx.Statement.Table == "files" {
			_ = tx.AddError(errors.New("database unavailable"))
		}
	}))

	err = svc.files.Delete(ctx, owner, file.ID)
	require.Error(t, err)

	_, reader, err := svc.files.Open(ctx, owner, file.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	require.Equal(t, pngSignature, content)

	require.NoError(t, svc.db.Callback().Delete().Remove(failDelete))

	require.NoError(t, svc.files.Delete(ctx, owner, file.ID))
	exists, err := svc.store.Exists(ctx, file.Path)
	require.NoError(t, err)
	require.False(t, exists)
	_, err = svc.files.Get(ctx, owner, file.ID)
	require.ErrorIs(t, err, ErrFileNotFound)
}
