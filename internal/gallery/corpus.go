package gallery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// imageExtensions lists the file types picked up from the corpus.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// Sample is one enrollment image in the corpus.
type Sample struct {
	SubjectID string
	Path      string
}

// ListSamples walks the corpus one level deep. Each subdirectory name is a
// subject id and each image file inside it is a sample. Files directly under
// root and nested directories are ignored. Order is subject name then file name.
func ListSamples(root string) ([]Sample, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrCorpusMissing, root)
	}
	if err != nil {
		return nil, fmt.Errorf("stat corpus: %w", err)
	}

	subjects, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var samples []Sample
	for _, subject := range subjects {
		if !subject.IsDir() || strings.HasPrefix(subject.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, subject.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read subject %s: %w", subject.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			samples = append(samples, Sample{SubjectID: subject.Name(), Path: filepath.Join(dir, f.Name())})
		}
	}
	return samples, nil
}

// NextSamplePath returns the path for the next captured enrollment image of a
// subject, <root>/<id>/<id>_<n>.jpg, numbering after the existing files. The
// subject directory is created when missing.
func NextSamplePath(root, subjectID string) (string, error) {
	if subjectID == "" || strings.ContainsAny(subjectID, `/\`) || subjectID == "." || subjectID == ".." {
		return "", fmt.Errorf("invalid subject id %q", subjectID)
	}
	dir := filepath.Join(root, subjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create subject dir: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read subject dir: %w", err)
	}
	next := 0
	prefix := subjectID + "_"
	for _, f := range files {
		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		if n, err := strconv.Atoi(strings.TrimPrefix(name, prefix)); err == nil && strings.HasPrefix(name, prefix) && n >= next {
			next = n + 1
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", subjectID, next)), nil
}
