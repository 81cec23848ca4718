package backend

import (
	"regexp"
	"strings"
)

// Universally dangerous command patterns, checked after the per-profile
// deny-list. These apply regardless of the permission profile: no agent
// may run them through any backend.
var dangerousPatterns = []*regexp.Regexp{
	// Recursive deletion of root or home
	regexp.MustCompile(`rm\s+(-[rRf]+\s+)+/(\s|$|\*)`),
	regexp.MustCompile(`rm\s+(-[rRf]+\s+)+(~|\$HOME|\$\{HOME\})`),
	// Writes to raw block devices
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|vd)`),
	// Filesystem formatting
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	// Direct disk writes
	regexp.MustCompile(`\bdd\s+.*of=/dev/`),
	// Fork bombs
	regexp.MustCompile(`:\s*\(\s*\)\s*\{`),
	regexp.MustCompile(`\$\{?0\}?\s*[&|]\s*\$\{?0\}?`),
	// Recursive world-writable chmod of root
	regexp.MustCompile(`chmod\s+(-R\s+)?777\s+/(\s|$)`),
	// Download piped straight into a shell
	regexp.MustCompile(`(?i)(curl|wget)\s+[^|]*\|\s*(ba|z)?sh`),
}

// checkDangerous returns a human-readable reason when the command matches
// a universally blocked pattern, or "" when it is clean.
func checkDangerous(command string) string {
	for _, p := range dangerousPatterns {
		if p.MatchString(command) {
			return "command matches blocked pattern: " + p.String()
		}
	}
	return ""
}

// checkDenyList matches the profile's blocked commands by substring, the
// way the profiles declare them (e.g. "sudo" blocks "sudo rm").
func checkDenyList(command string, blocked []string) string {
	for _, b := range blocked {
		if b != "" && strings.Contains(command, b) {
			return "command contains blocked term: " + b
		}
	}
	return ""
}
