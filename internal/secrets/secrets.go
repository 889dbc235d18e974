// Package secrets pushes function secrets to an environment.
//
// The management API treats secret values as write-only: listings carry
// names but never values, so secrets cannot be copied between
// environments directly. The source of truth is a local env file; the
// syncer plans against the target's secret names and pushes what is
// missing (or, with overwrite, everything).
package secrets

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
)

// API is the slice of the management API the syncer needs.
type API interface {
	ListSecrets(ctx context.Context, projectRef string) ([]mgmt.Secret, error)
	SetSecrets(ctx context.Context, projectRef string, secrets []mgmt.Secret) error
}

// Syncer plans and applies secret pushes.
type Syncer struct {
	api    API
	logger *log.Logger
}

// NewSyncer creates a Syncer. If logger is nil, a default logger writing
// to stderr is used.
func NewSyncer(api API, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[secrets] ", log.LstdFlags)
	}
	return &Syncer{api: api, logger: logger}
}

// Plan is the set of secrets that would be pushed.
type Plan struct {
	// Push holds the secrets to set, sorted by name.
	Push []mgmt.Secret

	// Skipped lists names left alone: already present (without
	// overwrite) or excluded.
	Skipped []string
}

// Plan computes what Apply would push. Names in exclude are never
// touched; with overwrite false, names already present on the target are
// skipped since their values cannot be compared.
func (s *Syncer) Plan(ctx context.Context, target platform.Environment, desired []mgmt.Secret, exclude []string, overwrite bool) (*Plan, error) {
	existing, err := s.api.ListSecrets(ctx, target.ProjectRef)
	if err != nil {
		return nil, fmt.Errorf("listing secrets on %s: %w", target.Name, err)
	}

	present := make(map[string]struct{}, len(existing))
	for _, sec := range existing {
		present[sec.Name] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	plan := &Plan{}
	for _, sec := range desired {
		if _, skip := excluded[sec.Name]; skip {
			plan.Skipped = append(plan.Skipped, sec.Name)
			continue
		}
		if _, exists := present[sec.Name]; exists && !overwrite {
			plan.Skipped = append(plan.Skipped, sec.Name)
			continue
		}
		plan.Push = append(plan.Push, sec)
	}

	sort.Slice(plan.Push, func(i, j int) bool { return plan.Push[i].Name < plan.Push[j].Name })
	sort.Strings(plan.Skipped)
	return plan, nil
}

// Apply pushes the planned secrets in one call. An empty plan is a
// no-op.
func (s *Syncer) Apply(ctx context.Context, target platform.Environment, plan *Plan) error {
	if len(plan.Push) == 0 {
		s.logger.Printf("%s: no secrets to push", target.Name)
		return nil
	}
	if err := s.api.SetSecrets(ctx, target.ProjectRef, plan.Push); err != nil {
		return fmt.Errorf("setting secrets on %s: %w", target.Name, err)
	}
	s.logger.Printf("%s: pushed %d secrets", target.Name, len(plan.Push))
	return nil
}

// ParseEnvFile reads KEY=VALUE pairs from an env-format file. Blank
// lines and '#' comments are skipped; values may be single- or
// double-quoted.
func ParseEnvFile(path string) ([]mgmt.Secret, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening env file: %w", err)
	}
	defer f.Close()

	var secrets []mgmt.Secret
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%s:%d: not a KEY=VALUE line", path, lineNo)
		}
		secrets = append(secrets, mgmt.Secret{
			Name:  strings.TrimSpace(key),
			Value: unquote(strings.TrimSpace(value)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return secrets, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
