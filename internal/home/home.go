package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the stdcheck home directory.
	DefaultDirName = ".stdcheck"

	// RAGDirName holds the knowledge engine's working directory.
	RAGDirName = "rag_data"

	// UploadsDirName keeps uploaded report PDFs.
	UploadsDirName = "uploads"

	// ExportsDirName receives exported workbooks.
	ExportsDirName = "exports"

	// DBFileName is the SQLite database for report history and call logs.
	DBFileName = "stdcheck.db"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the stdcheck home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.stdcheck).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// RAGPath returns the knowledge engine working directory.
func (d *Dir) RAGPath() string {
	return filepath.Join(d.path, RAGDirName)
}

// UploadsPath returns the directory for uploaded PDFs.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// ExportsPath returns the directory for exported files.
func (d *Dir) ExportsPath() string {
	return filepath.Join(d.path, ExportsDirName)
}

// ExportPath returns the workbook path for a report.
func (d *Dir) ExportPath(reportID string) string {
	return filepath.Join(d.ExportsPath(), reportID+".xlsx")
}

// DBPath returns the path to the SQLite database.
func (d *Dir) DBPath() string {
	return filepath.Join(d.path, DBFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.RAGPath(), d.UploadsPath(), d.ExportsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
