// Package registry holds the immutable catalog of agent archetypes. The
// catalog is built from a static table at process start and is never
// mutated; lookups return nil for unknown ids rather than erroring.
package registry

// Tier groups archetypes by capability and cost. Each tier fixes a
// per-token cost pair used for estimate accounting.
type Tier string

const (
	TierStrategic  Tier = "T1"
	TierSpecialist Tier = "T2"
	TierWorker     Tier = "T3"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierStrategic, TierSpecialist, TierWorker:
		return true
	default:
		return false
	}
}

// TierCost is the mock per-token USD cost for a tier.
type TierCost struct {
	Input  float64
	Output float64
}

var tierCosts = map[Tier]TierCost{
	TierStrategic:  {Input: 0.000015, Output: 0.000075},
	TierSpecialist: {Input: 0.000003, Output: 0.000015},
	TierWorker:     {Input: 0.00000025, Output: 0.00000125},
}

// CostFor returns the cost table for a tier. Unknown tiers cost nothing.
func CostFor(t Tier) TierCost {
	return tierCosts[t]
}

type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleSpecialist  Role = "specialist"
	RoleWorker      Role = "worker"
)

type Archetype string

const (
	ArchetypeOrchestrator Archetype = "orchestrator"
	ArchetypePlanner      Archetype = "planner"
	ArchetypeResearcher   Archetype = "researcher"
	ArchetypeArchitect    Archetype = "architect"
	ArchetypeCoder        Archetype = "coder"
	ArchetypeReviewer     Archetype = "reviewer"
	ArchetypeTester       Archetype = "tester"
	ArchetypeFormatter    Archetype = "formatter"
	ArchetypeDocWriter    Archetype = "docwriter"
)

// AgentPermissions are the capability flags gating what an agent may do
// through the execution backend. A false flag must make the corresponding
// backend operation fail, never silently no-op.
type AgentPermissions struct {
	ExecuteCode     bool     `json:"execute_code"`
	WriteFiles      bool     `json:"write_files"`
	ReadFiles       bool     `json:"read_files"`
	AccessNetwork   bool     `json:"access_network"`
	SpawnAgents     bool     `json:"spawn_agents"`
	ShellAccess     bool     `json:"shell_access"`
	AllowedPaths    []string `json:"allowed_paths,omitempty"`
	BlockedCommands []string `json:"blocked_commands,omitempty"`
}

// TokenPolicy bounds an archetype's model usage.
type TokenPolicy struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type AgentTemplate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Codename    string           `json:"codename"`
	Archetype   Archetype        `json:"archetype"`
	Tier        Tier             `json:"tier"`
	Role        Role             `json:"role"`
	Skills      []string         `json:"skills"`
	Permissions AgentPermissions `json:"permissions"`
	Policy      TokenPolicy      `json:"policy"`
	Prompt      string           `json:"prompt"`
}

type Registry struct {
	templates map[string]*AgentTemplate
	order     []string
}

func New() *Registry {
	r := &Registry{templates: make(map[string]*AgentTemplate)}
	for i := range catalog {
		t := catalog[i]
		r.templates[t.ID] = &t
		r.order = append(r.order, t.ID)
	}
	return r
}

// Get returns the template for id, or nil if unknown.
func (r *Registry) Get(id string) *AgentTemplate {
	return r.templates[id]
}

func (r *Registry) ListByTier(tier Tier) []*AgentTemplate {
	var out []*AgentTemplate
	for _, id := range r.order {
		if t := r.templates[id]; t.Tier == tier {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) ListByRole(role Role) []*AgentTemplate {
	var out []*AgentTemplate
	for _, id := range r.order {
		if t := r.templates[id]; t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) All() []*AgentTemplate {
	out := make([]*AgentTemplate, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.templates[id])
	}
	return out
}
