package validation

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// MaxColumnNameLength is the maximum column name length.
const MaxColumnNameLength = 256

// ValidateFilePath cleans a path and makes it absolute.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", skerrors.New(skerrors.CodeFileNotFound, "empty file path")
	}
	if len(path) > MaxPathLength {
		return "", skerrors.New(skerrors.CodeFileNotFound, "path too long").
			WithContext("max_length", MaxPathLength)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", skerrors.Wrap(err, skerrors.CodeFileNotFound, "invalid path")
	}
	return abs, nil
}

// ValidateInputFile checks that path is a readable regular file of at most
// maxBytes (0 = unlimited) and returns its absolute path.
func ValidateInputFile(path string, maxBytes int64) (string, error) {
	clean, err := ValidateFilePath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(clean)
	if os.IsNotExist(err) {
		return "", skerrors.FileNotFound(path)
	}
	if err != nil {
		return "", skerrors.Wrap(err, skerrors.CodeUnreadable, "cannot access file").WithContext("path", path)
	}
	if info.IsDir() {
		return "", skerrors.New(skerrors.CodeUnreadable, "path is a directory, expected file").
			WithContext("path", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", skerrors.Newf(skerrors.CodeFileTooLarge, "file exceeds %d MB", maxBytes>>20).
			WithContext("path", path).
			WithContext("size", info.Size())
	}
	return clean, nil
}

// ValidateColumnName rejects empty, oversized or non-UTF-8 column names.
func ValidateColumnName(name string) error {
	if name == "" {
		return skerrors.New(skerrors.CodeSchema, "empty column name")
	}
	if len(name) > MaxColumnNameLength {
		return skerrors.New(skerrors.CodeSchema, "column name too long").
			WithContext("name", name[:50]+"...").
			WithContext("max_length", MaxColumnNameLength)
	}
	if !utf8.ValidString(name) {
		return skerrors.New(skerrors.CodeEncoding, "column name contains invalid UTF-8")
	}
	return nil
}
