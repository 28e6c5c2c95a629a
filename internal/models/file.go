package models

import "fmt"

// File is an uploaded object owned by exactly one user. Name is the client
// supplied filename; Path is the storage key.
type File struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Name     string `gorm:"not null;size:255;index" json:"name"`
	MimeType string `gorm:"column:mime;not null;size:127;index" json:"mime"`
	Size     int64  `gorm:"not null" json:"size"`
	Path     string `gorm:"not null;size:512;uniqueIndex" json:"path"`
	Disk     string `gorm:"not null;size:32;default:local" json:"disk"`
}

// OwnerID exposes the owning user for ownership checks.
func (f File) OwnerID() string {
	return f.UserID
}

// FormattedSize renders Size using binary units with two decimals.
func (f File) FormattedSize() string {
	return FormatBytes(f.Size)
}

// FormatBytes renders n bytes as B, KB, MB, GB or TB.
func FormatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	if size < 0 {
		size = 0
	}
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", int64(size), units[i])
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
