// Package deps resolves the external binaries the converter shells out to.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement names an external binary. Command may be an explicit path or a
// bare name looked up on PATH; Fallback replaces an empty Command.
type Requirement struct {
	Name        string
	Command     string
	Fallback    string
	Description string
	Optional    bool
}

// Status reports whether a requirement resolved. Command holds the resolved
// path when the binary was found on PATH.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check resolves a single requirement.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Command = strings.TrimSpace(req.Fallback)
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	if strings.ContainsRune(status.Command, filepath.Separator) {
		info, err := os.Stat(status.Command)
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		case !isExecutable(info):
			status.Detail = fmt.Sprintf("%q is not executable", status.Command)
		default:
			status.Available = true
		}
		return status
	}

	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// CheckBinaries resolves each requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Check(req)
	}
	return results
}

// Missing returns the required statuses that did not resolve.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
