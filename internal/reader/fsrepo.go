// Package reader provides data-source implementations for the sync
// orchestrators. The filesystem reader walks a local checkout of the
// workflow repository; fetching that checkout is outside this core.
package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
)

const (
	sidecarSuffix = ".mapping.json"
	// headFile holds the commit reference of the current checkout,
	// written by whatever tool keeps the checkout up to date.
	headFile = ".sync-head"
)

// FSRepositoryReader lists workflow definition files under a tracked path
// per environment.
type FSRepositoryReader struct {
	// paths maps environment id to the tracked directory of its checkout.
	paths map[string]string
}

func NewFSRepositoryReader(paths map[string]string) *FSRepositoryReader {
	return &FSRepositoryReader{paths: paths}
}

func (r *FSRepositoryReader) List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]ports.RepositoryFile, error) {
	root, ok := r.paths[environmentID]
	if !ok {
		return nil, fmt.Errorf("no tracked path configured for environment %s", environmentID)
	}

	commitRef := readCommitRef(root)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read tracked path %s: %w", root, err)
	}

	var files []ports.RepositoryFile
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, sidecarSuffix) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		file := ports.RepositoryFile{
			Path:      name,
			Content:   content,
			CommitRef: commitRef,
		}
		file.Sidecar, file.SidecarErr = readSidecar(root, name)
		files = append(files, file)
	}
	return files, nil
}

// readSidecar loads <stem>.mapping.json if present. A read failure is
// reported per file, not as a listing failure.
func readSidecar(root, name string) ([]byte, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	sidecar, err := os.ReadFile(filepath.Join(root, stem+sidecarSuffix))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sidecar, nil
}

func readCommitRef(root string) string {
	ref, err := os.ReadFile(filepath.Join(root, headFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(ref))
}
