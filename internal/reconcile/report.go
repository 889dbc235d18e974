package reconcile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stacksync/internal/deploy"
)

// report is the YAML shape of a run summary, for CI pipelines that want
// a machine-readable outcome next to the exit code.
type report struct {
	RunID    string    `yaml:"run_id"`
	When     time.Time `yaml:"when"`
	Source   string    `yaml:"source"`
	Target   string    `yaml:"target"`
	Success  bool      `yaml:"success"`
	Counts   counts    `yaml:"counts"`
	Deployed int       `yaml:"deployed"`
	Failed   int       `yaml:"failed"`

	Records       []recordEntry `yaml:"records,omitempty"`
	Unretrievable []string      `yaml:"unretrievable,omitempty"`
}

type counts struct {
	New           int `yaml:"new"`
	Changed       int `yaml:"changed"`
	Unchanged     int `yaml:"unchanged"`
	Indeterminate int `yaml:"indeterminate"`
}

type recordEntry struct {
	Name       string `yaml:"name"`
	Outcome    string `yaml:"outcome"`
	Strategy   string `yaml:"strategy,omitempty"`
	Diagnostic string `yaml:"diagnostic,omitempty"`
}

// WriteReport writes the summary as YAML to path.
func (s *Summary) WriteReport(path, source, target string) error {
	rep := report{
		RunID:   s.RunID,
		When:    time.Now().UTC(),
		Source:  source,
		Target:  target,
		Success: s.Success(),
		Counts: counts{
			New:           s.Counts.New,
			Changed:       s.Counts.Changed,
			Unchanged:     s.Counts.Unchanged,
			Indeterminate: s.Counts.Indeterminate,
		},
		Deployed:      s.Deployed,
		Failed:        s.Failed,
		Unretrievable: s.Unretrievable,
	}
	for _, r := range s.Records {
		entry := recordEntry{
			Name:     r.Name,
			Outcome:  r.Outcome.String(),
			Strategy: r.Strategy,
		}
		if r.Outcome == deploy.Failed {
			entry.Diagnostic = r.Diagnostic
		}
		rep.Records = append(rep.Records, entry)
	}

	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
