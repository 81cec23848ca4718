// Package backend gates every side-effecting command and file operation
// behind the agent's permission profile before anything reaches an
// execution target. Command violations come back as structured failures;
// file operations error out so callers guard them with capability checks.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkefalas/apiary/internal/registry"
)

var (
	ErrNotImplemented   = errors.New("backend: not implemented")
	ErrPermissionDenied = errors.New("backend: permission denied")
	ErrPathNotAllowed   = errors.New("backend: path outside allowed set")
)

// Result is the outcome of an Execute call. Permission and pattern
// violations populate Error with Success false; they are never panics.
type Result struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// ExecOptions carry per-call execution context.
type ExecOptions struct {
	WorkDir string
	Env     map[string]string
	AgentID string
	TaskID  string
}

// Backend is the strategy interface over execution targets. A production
// deployment substitutes a real gateway without changing callers.
type Backend interface {
	Execute(ctx context.Context, command string, opts ExecOptions) Result
	WriteFile(ctx context.Context, path string, content []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Cleanup() error
}

// New selects a backend implementation by kind. The gateway token is only
// consulted by the sandbox variant.
func New(kind string, perms registry.AgentPermissions, workspace, gatewayToken string) (Backend, error) {
	switch kind {
	case "", "local":
		return NewLocal(perms, workspace), nil
	case "sandbox":
		return NewSandbox(perms, gatewayToken)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}
