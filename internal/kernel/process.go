package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// KernelType distinguishes the connection-file-only python-pooled-env
// launch path from kernelspec-discovery launches of any other
// language (spec.md §4.G step 4).
type KernelType string

const (
	KernelTypePython KernelType = "python"
	KernelTypeOther  KernelType = "other"
)

// KernelSpec is the subset of a discovered kernelspec needed to build
// a launch command (kernelspec file discovery itself is out of scope
// per spec.md §1 — callers resolve it and hand the template in).
type KernelSpec struct {
	// Argv is the command template, e.g.
	// ["/usr/bin/ir", "--kernel-config", "{connection_file}"].
	// "{connection_file}" is substituted with the actual path.
	Argv []string
}

// buildCommand implements spec.md §4.G step 4.
func buildCommand(kernelType KernelType, interpreterPath string, spec *KernelSpec, connectionFile string) (*exec.Cmd, error) {
	if kernelType == KernelTypePython && interpreterPath != "" {
		return exec.Command(interpreterPath,
			"-Xfrozen_modules=off",
			"-m", "ipykernel_launcher",
			"-f", connectionFile,
		), nil
	}
	if spec == nil || len(spec.Argv) == 0 {
		return nil, fmt.Errorf("kernel: no pooled python env and no kernelspec provided for type %q", kernelType)
	}
	argv := make([]string, len(spec.Argv))
	for i, a := range spec.Argv {
		if a == "{connection_file}" {
			argv[i] = connectionFile
		} else {
			argv[i] = a
		}
	}
	return exec.Command(argv[0], argv[1:]...), nil
}

// chooseWorkDir implements spec.md §4.G step 5's working-directory
// fallback chain: notebook's parent, else user home, else temp.
func chooseWorkDir(notebookPath string) string {
	if notebookPath != "" {
		return parentDir(notebookPath)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return os.TempDir()
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// setProcessGroup puts the child in its own POSIX process group so
// the whole subtree can be signalled on teardown (spec.md §4.G step 5).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group rooted at pid.
// ESRCH (already gone) is silently ignored, as spec.md §4.G requires.
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if err != nil && err != unix.ESRCH {
		return fmt.Errorf("kernel: kill process group %d: %w", pid, err)
	}
	return nil
}
