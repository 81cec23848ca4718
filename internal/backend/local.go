package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkefalas/apiary/internal/registry"
)

// Local validates operations against the permission profile and performs
// file I/O inside the workspace root. Execute only validates; command
// dispatch is the remote gateway's job and no code runs in-process.
type Local struct {
	perms registry.AgentPermissions
	root  string
}

func NewLocal(perms registry.AgentPermissions, workspace string) *Local {
	root, err := filepath.Abs(workspace)
	if err != nil {
		root = workspace
	}
	return &Local{perms: perms, root: root}
}

func (l *Local) Execute(ctx context.Context, command string, opts ExecOptions) Result {
	if !l.perms.ShellAccess {
		return Result{
			Success:  false,
			ExitCode: -1,
			Error:    "shell access not permitted for this agent",
		}
	}

	if reason := checkDenyList(command, l.perms.BlockedCommands); reason != "" {
		slog.Warn("command blocked by profile", "agent", opts.AgentID, "reason", reason)
		return Result{Success: false, ExitCode: -1, Error: reason}
	}

	if reason := checkDangerous(command); reason != "" {
		slog.Warn("dangerous command rejected", "agent", opts.AgentID, "command", command)
		return Result{Success: false, ExitCode: -1, Error: reason}
	}

	// Validation passed. Dispatch to the remote gateway happens at this
	// boundary; in-process we only acknowledge.
	slog.Debug("command validated", "agent", opts.AgentID, "task", opts.TaskID)
	return Result{Success: true, ExitCode: 0}
}

func (l *Local) WriteFile(ctx context.Context, path string, content []byte) error {
	if !l.perms.WriteFiles {
		return fmt.Errorf("%w: write files", ErrPermissionDenied)
	}

	abs, rel, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := l.checkAllowed(rel); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if !l.perms.ReadFiles {
		return nil, fmt.Errorf("%w: read files", ErrPermissionDenied)
	}

	abs, rel, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := l.checkAllowed(rel); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (l *Local) Cleanup() error {
	return nil
}

// resolve normalizes a path inside the workspace root and rejects
// traversal outside it.
func (l *Local) resolve(path string) (abs, rel string, err error) {
	cleaned := filepath.Clean("/" + path)
	rel = strings.TrimPrefix(cleaned, "/")
	abs = filepath.Join(l.root, rel)
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
	}
	return abs, rel, nil
}

func (l *Local) checkAllowed(rel string) error {
	if len(l.perms.AllowedPaths) == 0 {
		return nil
	}
	for _, prefix := range l.perms.AllowedPaths {
		prefix = strings.TrimPrefix(filepath.Clean("/"+prefix), "/")
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPathNotAllowed, rel)
}
