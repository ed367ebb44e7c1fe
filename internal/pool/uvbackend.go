package pool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// UvBackend creates python environments with uv (spec.md §4.F: "uv
// venv + uv pip install", the fast pip-compatible resolver path).
type UvBackend struct {
	// UvPath is the uv binary, usually just "uv" resolved via PATH.
	UvPath string
	// DefaultPackages are installed into every freshly created
	// environment before it is offered to the pool (settingsdoc's
	// envs.uv.default_packages, read by the caller that builds this
	// backend).
	DefaultPackages []string
}

func (b *UvBackend) Name() string { return "uv" }

func (b *UvBackend) uvPath() string {
	if b.UvPath != "" {
		return b.UvPath
	}
	return "uv"
}

// CreateOne runs "uv venv" followed by "uv pip install" for the
// configured default packages, returning the venv's interpreter path.
func (b *UvBackend) CreateOne(ctx context.Context, cacheDir string) (PooledEnv, error) {
	root := filepath.Join(cacheDir, fmt.Sprintf("uv-%s", uuid.New().String()))

	venv := exec.CommandContext(ctx, b.uvPath(), "venv", root)
	var stderr bytes.Buffer
	venv.Stderr = &stderr
	if err := venv.Run(); err != nil {
		return PooledEnv{}, fmt.Errorf("uv venv %s: %w: %s", root, err, stderr.String())
	}

	interpreter := filepath.Join(root, "bin", "python")

	if len(b.DefaultPackages) > 0 {
		args := append([]string{"pip", "install", "--python", interpreter}, b.DefaultPackages...)
		install := exec.CommandContext(ctx, b.uvPath(), args...)
		stderr.Reset()
		install.Stderr = &stderr
		if err := install.Run(); err != nil {
			return PooledEnv{}, fmt.Errorf("uv pip install: %w: %s", err, stderr.String())
		}
	}

	return PooledEnv{
		EnvType:         "uv",
		RootPath:        root,
		InterpreterPath: interpreter,
	}, nil
}
