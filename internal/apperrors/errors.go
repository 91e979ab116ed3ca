package apperrors

import "fmt"

// ErrBadCredentials is returned when titulky.com rejects the configured login.
// It is terminal for the given credentials and must never be retried.
type ErrBadCredentials struct {
	Username string
}

// Error implements the error interface.
func (e *ErrBadCredentials) Error() string {
	return fmt.Sprintf("titulky.com rejected credentials for user %q", e.Username)
}

// Is allows for error checking with errors.Is().
func (e *ErrBadCredentials) Is(target error) bool {
	_, ok := target.(*ErrBadCredentials)
	return ok
}

// NewBadCredentialsError creates a new ErrBadCredentials.
func NewBadCredentialsError(username string) *ErrBadCredentials {
	return &ErrBadCredentials{Username: username}
}

// ErrCaptchaRequired is returned when the site substitutes a captcha challenge
// for the expected content. The condition is sticky on the session until its
// cooldown elapses; callers should surface a "try again later" explanation
// instead of a generic error.
type ErrCaptchaRequired struct {
	Operation string
}

// Error implements the error interface.
func (e *ErrCaptchaRequired) Error() string {
	return fmt.Sprintf("titulky.com requires a captcha to continue %s", e.Operation)
}

// Is allows for error checking with errors.Is().
func (e *ErrCaptchaRequired) Is(target error) bool {
	_, ok := target.(*ErrCaptchaRequired)
	return ok
}

// NewCaptchaRequiredError creates a new ErrCaptchaRequired.
func NewCaptchaRequiredError(operation string) *ErrCaptchaRequired {
	return &ErrCaptchaRequired{Operation: operation}
}

// ErrLinkNotFound is returned when a download page loaded without a captcha
// challenge but carries no final download link.
type ErrLinkNotFound struct {
	SubtitleID string
}

// Error implements the error interface.
func (e *ErrLinkNotFound) Error() string {
	return fmt.Sprintf("download link not found on page for subtitle %s", e.SubtitleID)
}

// Is allows for error checking with errors.Is().
func (e *ErrLinkNotFound) Is(target error) bool {
	_, ok := target.(*ErrLinkNotFound)
	return ok
}

// NewLinkNotFoundError creates a new ErrLinkNotFound.
func NewLinkNotFoundError(subtitleID string) *ErrLinkNotFound {
	return &ErrLinkNotFound{SubtitleID: subtitleID}
}

// ErrArchiveTooSmall is returned when the final download response is below the
// minimum plausible archive size and is treated as a failed download.
type ErrArchiveTooSmall struct {
	Size    int
	Minimum int
}

// Error implements the error interface.
func (e *ErrArchiveTooSmall) Error() string {
	return fmt.Sprintf("downloaded archive is %d bytes, below the %d byte minimum", e.Size, e.Minimum)
}

// Is allows for error checking with errors.Is().
func (e *ErrArchiveTooSmall) Is(target error) bool {
	_, ok := target.(*ErrArchiveTooSmall)
	return ok
}

// NewArchiveTooSmallError creates a new ErrArchiveTooSmall.
func NewArchiveTooSmallError(size, minimum int) *ErrArchiveTooSmall {
	return &ErrArchiveTooSmall{Size: size, Minimum: minimum}
}

// ErrNoSubtitleInArchive is returned when an archive parsed fine but contained
// no file with a known subtitle extension.
type ErrNoSubtitleInArchive struct {
	FileCount int
}

// Error implements the error interface.
func (e *ErrNoSubtitleInArchive) Error() string {
	return fmt.Sprintf("no subtitle file found in archive (searched %d files)", e.FileCount)
}

// Is allows for error checking with errors.Is().
func (e *ErrNoSubtitleInArchive) Is(target error) bool {
	_, ok := target.(*ErrNoSubtitleInArchive)
	return ok
}

// NewNoSubtitleInArchiveError creates a new ErrNoSubtitleInArchive.
func NewNoSubtitleInArchiveError(fileCount int) *ErrNoSubtitleInArchive {
	return &ErrNoSubtitleInArchive{FileCount: fileCount}
}

// ErrNotFound represents an error when a requested resource is not found.
type ErrNotFound struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface.
func (e *ErrNotFound) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is allows for error checking with errors.Is().
func (e *ErrNotFound) Is(target error) bool {
	_, ok := target.(*ErrNotFound)
	return ok
}

// NewNotFoundError creates a new ErrNotFound.
func NewNotFoundError(resource string, id interface{}) *ErrNotFound {
	return &ErrNotFound{Resource: resource, ID: id}
}
