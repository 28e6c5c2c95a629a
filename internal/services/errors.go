package services

import (
	"net/http"

	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New(apperrors.ErrNotFound.Code, "Role not found.", http.StatusNotFound)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New(apperrors.ErrNotFound.Code, "User not found.", http.StatusNotFound)
	// ErrFileNotFound indicates the requested file record does not exist.
	ErrFileNotFound = apperrors.New(apperrors.ErrNotFound.Code, "File not found.", http.StatusNotFound)
	// ErrStoredFileMissing is returned when a file record exists but its bytes do not.
	ErrStoredFileMissing = apperrors.New(apperrors.ErrNotFound.Code, "File not found in storage.", http.StatusNotFound)

	// ErrRoleProtected prevents deletion of the seeded system roles.
	ErrRoleProtected = apperrors.New("ROLE_PROTECTED", "Cannot delete default roles.", http.StatusUnprocessableEntity)
	// ErrRoleRenameProtected prevents renaming the seeded system roles.
	ErrRoleRenameProtected = apperrors.New("ROLE_PROTECTED", "Default roles cannot be renamed.", http.StatusUnprocessableEntity)
	// ErrUserSelfDelete prevents a user from deleting their own account.
	ErrUserSelfDelete = apperrors.New("USER_SELF_DELETE", "Cannot delete your own account.", http.StatusUnprocessableEntity)
	// ErrUploadFailed reports a batch upload in which no file was stored.
	ErrUploadFailed = apperrors.New("UPLOAD_FAILED", "Failed to upload files.", http.StatusUnprocessableEntity)
)

const (
	msgRoleNameTaken      = "Role name already exists."
	msgUnknownPermissions = "One or more selected permissions do not exist."
	msgEmailTaken         = "The email has already been taken."
	msgUnknownRoles       = "One or more selected roles do not exist."
)
