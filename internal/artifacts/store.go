// Package artifacts persists run configuration and raw result documents as
// JSON files outside the relational store. Rows reference these files by
// path; files are written before the row insert, and orphans from a failed
// insert are left in place.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	timestampLayout = "20060102_150405"
)

// KindConfig and KindResult name the two document kinds a run produces.
const (
	KindConfig = "config"
	KindResult = "result"
)

// Store writes run artifacts under a base directory, one subdirectory per
// strategy.
type Store struct {
	baseDir string
	logger  *logrus.Logger
}

// NewStore creates an artifact store rooted at baseDir.
func NewStore(baseDir string, logger *logrus.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		logger:  logger,
	}
}

// RunArtifacts holds the recorded locations of a run's side-channel files.
type RunArtifacts struct {
	ConfigPath string
	ResultPath string
}

// WriteRunArtifacts persists the configuration snapshot and the full raw
// result document for a run and returns their paths. Both documents must be
// valid JSON.
func (s *Store) WriteRunArtifacts(strategyName string, runNumber int, configDoc, resultDoc json.RawMessage) (*RunArtifacts, error) {
	dir := filepath.Join(s.baseDir, strategyName)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	ts := time.Now().UTC().Format(timestampLayout)
	configPath, err := s.writeDocument(dir, strategyName, runNumber, ts, KindConfig, configDoc)
	if err != nil {
		return nil, err
	}

	resultPath, err := s.writeDocument(dir, strategyName, runNumber, ts, KindResult, resultDoc)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"strategy":    strategyName,
		"run_number":  runNumber,
		"config_path": configPath,
		"result_path": resultPath,
	}).Debug("Run artifacts written")

	return &RunArtifacts{ConfigPath: configPath, ResultPath: resultPath}, nil
}

// writeDocument writes one JSON document, de-duplicating the filename if a
// run with the same second-resolution timestamp already wrote it.
func (s *Store) writeDocument(dir, strategyName string, runNumber int, ts, kind string, doc json.RawMessage) (string, error) {
	if len(doc) == 0 {
		doc = json.RawMessage("{}")
	}
	if !json.Valid(doc) {
		return "", fmt.Errorf("artifact document for %s/%s is not valid JSON", strategyName, kind)
	}

	name := fmt.Sprintf("%s_%s_run%d_%s.json", ts, strategyName, runNumber, kind)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("%s_%s_run%d_%s_%s.json", ts, strategyName, runNumber, uuid.NewString()[:8], kind)
		path = filepath.Join(dir, name)
	}

	if err := os.WriteFile(path, doc, filePerm); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}

// ReadDocument loads a previously written artifact document.
func (s *Store) ReadDocument(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("artifact %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// CopyTo copies an artifact file into destDir, keeping its base name.
// Used when exporting the winning configurations of an analysis query.
func (s *Store) CopyTo(srcPath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create export directory %s: %w", destDir, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact %s: %w", srcPath, err)
	}
	defer src.Close()

	destPath := filepath.Join(destDir, filepath.Base(srcPath))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file %s: %w", destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", fmt.Errorf("failed to copy artifact to %s: %w", destPath, err)
	}
	return destPath, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}
