package pool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// CondaBackend creates python environments with conda's solver
// (spec.md §4.F: the slower, dependency-graph-aware alternative to uv).
type CondaBackend struct {
	// CondaPath is the conda/mamba binary.
	CondaPath       string
	DefaultPackages []string
}

func (b *CondaBackend) Name() string { return "conda" }

func (b *CondaBackend) condaPath() string {
	if b.CondaPath != "" {
		return b.CondaPath
	}
	return "conda"
}

// CreateOne runs "conda create" with the default package set baked
// into the initial solve, since conda environments are not
// incrementally installed into the way uv venvs are.
func (b *CondaBackend) CreateOne(ctx context.Context, cacheDir string) (PooledEnv, error) {
	root := filepath.Join(cacheDir, fmt.Sprintf("conda-%s", uuid.New().String()))

	args := []string{"create", "--yes", "--quiet", "--prefix", root, "python"}
	args = append(args, b.DefaultPackages...)

	create := exec.CommandContext(ctx, b.condaPath(), args...)
	var stderr bytes.Buffer
	create.Stderr = &stderr
	if err := create.Run(); err != nil {
		return PooledEnv{}, fmt.Errorf("conda create %s: %w: %s", root, err, stderr.String())
	}

	return PooledEnv{
		EnvType:         "conda",
		RootPath:        root,
		InterpreterPath: filepath.Join(root, "bin", "python"),
	}, nil
}
