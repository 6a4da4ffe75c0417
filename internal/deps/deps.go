package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediahub/internal/config"
)

// Requirement defines an external binary the hub or one of its workers runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the encoder and every enabled worker command in cfg.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	var reqs []Requirement
	if len(cfg.Converter.Encoder) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "encoder",
			Command:     cfg.Converter.Encoder[0],
			Description: "Runs conversions for the converter worker",
		})
	}
	for _, w := range cfg.EnabledWorkers() {
		if len(w.Command) == 0 {
			continue
		}
		reqs = append(reqs, Requirement{
			Name:        "worker " + w.Name,
			Command:     w.Command[0],
			Description: "Supervised by the hub",
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the names of required dependencies that are unavailable.
func Missing(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			names = append(names, s.Name)
		}
	}
	return names
}
