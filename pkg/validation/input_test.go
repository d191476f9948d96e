package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.csv")
	if err := os.WriteFile(small, []byte("sku,qty\nA1,1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	big := filepath.Join(dir, "big.csv")
	if err := os.WriteFile(big, make([]byte, 2<<20), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		max     int64
		wantErr skerrors.Code
	}{
		{"readable", small, 1 << 20, ""},
		{"unlimited", big, 0, ""},
		{"missing", filepath.Join(dir, "nope.csv"), 0, skerrors.CodeFileNotFound},
		{"directory", dir, 0, skerrors.CodeUnreadable},
		{"too large", big, 1 << 20, skerrors.CodeFileTooLarge},
		{"empty path", "", 0, skerrors.CodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateInputFile(tt.path, tt.max)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateInputFile() error = %v", err)
				}
				if !filepath.IsAbs(got) {
					t.Errorf("ValidateInputFile() = %q, want absolute path", got)
				}
				return
			}
			if !skerrors.IsCode(err, tt.wantErr) {
				t.Errorf("ValidateInputFile() error = %v, want %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidateColumnName(t *testing.T) {
	tests := []struct {
		name string
		want skerrors.Code
	}{
		{"qty", ""},
		{"", skerrors.CodeSchema},
		{strings.Repeat("x", MaxColumnNameLength+1), skerrors.CodeSchema},
		{"bad\xff", skerrors.CodeEncoding},
	}
	for _, tt := range tests {
		err := ValidateColumnName(tt.name)
		if tt.want == "" && err != nil {
			t.Errorf("ValidateColumnName(%.10q) error = %v", tt.name, err)
		}
		if tt.want != "" && !skerrors.IsCode(err, tt.want) {
			t.Errorf("ValidateColumnName(%.10q) error = %v, want %s", tt.name, err, tt.want)
		}
	}
}
