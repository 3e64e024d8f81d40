// Package validation checks user-supplied paths and input files before the
// CLI loads them, guarding against path injection and resource exhaustion.
package validation

import (
	"bytes"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/standoff/core/errors"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxFileSize is the maximum allowed input size (256 MB).
	MaxFileSize = 256 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors. All of them match errors.ErrInvalidInput.
var (
	ErrInvalidFilename  = errors.Wrap(errors.ErrInvalidInput, "invalid filename")
	ErrPathTooLong      = errors.Wrap(errors.ErrInvalidInput, "path too long")
	ErrFilenameTooLong  = errors.Wrap(errors.ErrInvalidInput, "filename too long")
	ErrInvalidCharacter = errors.Wrap(errors.ErrInvalidInput, "invalid character in path")
	ErrEmptyPath        = errors.Wrap(errors.ErrInvalidInput, "path cannot be empty")
	ErrFileTooLarge     = errors.Wrap(errors.ErrInvalidInput, "file too large")
	ErrNotText          = errors.Wrap(errors.ErrInvalidInput, "not UTF-8 text")
)

// ValidatePath checks a path for length limits and control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return errors.Wrapf(ErrInvalidCharacter, "control character %U", r)
		}
	}
	return nil
}

// ValidateFilename checks that filename is a single safe path element.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return errors.Wrap(ErrInvalidFilename, "reserved name")
	}
	if strings.ContainsAny(filename, "/\\") {
		return errors.Wrap(ErrInvalidFilename, "path separator not allowed")
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return errors.Wrap(ErrInvalidFilename, "control character not allowed")
		}
	}
	// Can be confused with command flags.
	if strings.HasPrefix(filename, "-") {
		return errors.Wrap(ErrInvalidFilename, "filename cannot start with hyphen")
	}
	return nil
}

// SanitizeFilename turns arbitrary input into a safe filename, or fails if
// nothing usable remains.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	filename = strings.NewReplacer("/", "_", "\\", "_").Replace(filename)

	var cleaned strings.Builder
	for _, r := range filename {
		if !unicode.IsControl(r) {
			cleaned.WriteRune(r)
		}
	}
	filename = strings.TrimLeft(cleaned.String(), "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// ReadFile validates path and reads at most MaxFileSize bytes from it.
func ReadFile(path string) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, errors.Wrapf(err, "%q", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(data) > MaxFileSize {
		return nil, errors.Wrapf(ErrFileTooLarge, "%s exceeds %d bytes", path, MaxFileSize)
	}
	return data, nil
}

// CheckText verifies that data is valid UTF-8 without NUL bytes.
func CheckText(data []byte) error {
	if bytes.IndexByte(data, 0) != -1 {
		return errors.Wrap(ErrNotText, "NUL byte")
	}
	if !utf8.Valid(data) {
		return errors.Wrap(ErrNotText, "invalid UTF-8")
	}
	return nil
}

// ReadText reads a UTF-8 text file.
func ReadText(path string) (string, error) {
	data, err := ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := CheckText(data); err != nil {
		return "", errors.Wrapf(err, "%s", path)
	}
	return string(data), nil
}
