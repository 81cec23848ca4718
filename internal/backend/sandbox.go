package backend

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/mkefalas/apiary/internal/registry"
)

// Sandbox targets an isolated container environment. The Docker client is
// established up front so a missing daemon fails at construction, but the
// operations themselves are intentionally unimplemented: selecting this
// backend without a finished container target must be loud, not a silent
// degradation to local semantics.
type Sandbox struct {
	perms        registry.AgentPermissions
	docker       *client.Client
	gatewayToken string
}

func NewSandbox(perms registry.AgentPermissions, gatewayToken string) (*Sandbox, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Sandbox{
		perms:        perms,
		docker:       docker,
		gatewayToken: gatewayToken,
	}, nil
}

func (s *Sandbox) Execute(ctx context.Context, command string, opts ExecOptions) Result {
	return Result{
		Success:  false,
		ExitCode: -1,
		Error:    ErrNotImplemented.Error(),
	}
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	return fmt.Errorf("%w: sandbox write", ErrNotImplemented)
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("%w: sandbox read", ErrNotImplemented)
}

func (s *Sandbox) Cleanup() error {
	if s.docker != nil {
		return s.docker.Close()
	}
	return nil
}
