package registry

// The static archetype table. Template ids double as the vocabulary the
// task analyzer emits, so renaming one here requires updating the
// analyzer's family table.
var catalog = []AgentTemplate{
	{
		ID:        "orchestrator",
		Name:      "Swarm Orchestrator",
		Codename:  "queen",
		Archetype: ArchetypeOrchestrator,
		Tier:      TierStrategic,
		Role:      RoleCoordinator,
		Skills:    []string{"coordination", "decomposition", "delegation"},
		Permissions: AgentPermissions{
			ReadFiles:   true,
			SpawnAgents: true,
		},
		Policy: TokenPolicy{MaxTokens: 8192, Temperature: 0.3},
		Prompt: "You coordinate a swarm of specialist agents. Decompose tasks, delegate, and integrate results.",
	},
	{
		ID:        "planner",
		Name:      "Task Planner",
		Codename:  "surveyor",
		Archetype: ArchetypePlanner,
		Tier:      TierSpecialist,
		Role:      RoleSpecialist,
		Skills:    []string{"planning", "estimation", "sequencing"},
		Permissions: AgentPermissions{
			ReadFiles: true,
		},
		Policy: TokenPolicy{MaxTokens: 4096, Temperature: 0.4},
		Prompt: "You break work into ordered, estimable steps with explicit dependencies.",
	},
	{
		ID:        "researcher",
		Name:      "Researcher",
		Codename:  "scout",
		Archetype: ArchetypeResearcher,
		Tier:      TierSpecialist,
		Role:      RoleSpecialist,
		Skills:    []string{"research", "analysis", "summarization"},
		Permissions: AgentPermissions{
			ReadFiles:     true,
			AccessNetwork: true,
		},
		Policy: TokenPolicy{MaxTokens: 4096, Temperature: 0.5},
		Prompt: "You investigate codebases and external references, then report findings concisely.",
	},
	{
		ID:        "architect",
		Name:      "System Architect",
		Codename:  "mason",
		Archetype: ArchetypeArchitect,
		Tier:      TierSpecialist,
		Role:      RoleSpecialist,
		Skills:    []string{"architecture", "design", "interfaces"},
		Permissions: AgentPermissions{
			ReadFiles:  true,
			WriteFiles: true,
		},
		Policy: TokenPolicy{MaxTokens: 8192, Temperature: 0.3},
		Prompt: "You design component boundaries, data models, and interface contracts.",
	},
	{
		ID:        "coder",
		Name:      "Implementation Engineer",
		Codename:  "builder",
		Archetype: ArchetypeCoder,
		Tier:      TierSpecialist,
		Role:      RoleSpecialist,
		Skills:    []string{"coding", "debugging", "refactoring"},
		Permissions: AgentPermissions{
			ExecuteCode:     true,
			WriteFiles:      true,
			ReadFiles:       true,
			ShellAccess:     true,
			BlockedCommands: []string{"sudo", "shutdown", "reboot"},
		},
		Policy: TokenPolicy{MaxTokens: 8192, Temperature: 0.2},
		Prompt: "You implement changes in code, run builds, and fix failures.",
	},
	{
		ID:        "reviewer",
		Name:      "Code Reviewer",
		Codename:  "inspector",
		Archetype: ArchetypeReviewer,
		Tier:      TierSpecialist,
		Role:      RoleSpecialist,
		Skills:    []string{"review", "security", "quality"},
		Permissions: AgentPermissions{
			ReadFiles: true,
		},
		Policy: TokenPolicy{MaxTokens: 4096, Temperature: 0.2},
		Prompt: "You review diffs for correctness, style, and security issues.",
	},
	{
		ID:        "tester",
		Name:      "Test Engineer",
		Codename:  "prober",
		Archetype: ArchetypeTester,
		Tier:      TierWorker,
		Role:      RoleWorker,
		Skills:    []string{"testing", "coverage", "regression"},
		Permissions: AgentPermissions{
			ExecuteCode:     true,
			ReadFiles:       true,
			WriteFiles:      true,
			ShellAccess:     true,
			BlockedCommands: []string{"sudo"},
		},
		Policy: TokenPolicy{MaxTokens: 4096, Temperature: 0.2},
		Prompt: "You write and run tests, then report failures with reproduction steps.",
	},
	{
		ID:        "formatter",
		Name:      "Code Formatter",
		Codename:  "polisher",
		Archetype: ArchetypeFormatter,
		Tier:      TierWorker,
		Role:      RoleWorker,
		Skills:    []string{"formatting", "linting", "style"},
		Permissions: AgentPermissions{
			ReadFiles:   true,
			WriteFiles:  true,
			ShellAccess: true,
		},
		Policy: TokenPolicy{MaxTokens: 2048, Temperature: 0.1},
		Prompt: "You apply formatters and linters and fix mechanical style issues only.",
	},
	{
		ID:        "docwriter",
		Name:      "Documentation Writer",
		Codename:  "scribe",
		Archetype: ArchetypeDocWriter,
		Tier:      TierWorker,
		Role:      RoleWorker,
		Skills:    []string{"documentation", "examples", "changelogs"},
		Permissions: AgentPermissions{
			ReadFiles:  true,
			WriteFiles: true,
		},
		Policy: TokenPolicy{MaxTokens: 4096, Temperature: 0.5},
		Prompt: "You write and update documentation to match the current behavior of the code.",
	},
}
