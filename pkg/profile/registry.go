package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/agnivade/levenshtein"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// Registry holds the loaded profiles keyed by cluster name. The underlying
// file is append-only source data; the registry exposes no update or delete.
type Registry struct {
	profiles map[string]*MachineProfile
}

// NewRegistry creates an empty Registry, used when deriving the first
// profile of a new file.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*MachineProfile)}
}

// Load parses and validates a profiles file. Validation reports every
// violated invariant across all profiles, not just the first.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("cannot read profiles file %q", path))
	}
	return Parse(data)
}

// Parse builds a Registry from raw JSON.
func Parse(data []byte) (*Registry, error) {
	var profiles map[string]*MachineProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "malformed profiles file")
	}

	var violations []Violation
	for _, name := range sortedKeys(profiles) {
		violations = profiles[name].validate(name, violations)
	}
	if len(violations) > 0 {
		return nil, chiroperrors.Wrap(&ValidationError{Violations: violations},
			chiroperrors.ErrCodeValidation, "invalid machine profiles")
	}

	return &Registry{profiles: profiles}, nil
}

// Get returns the profile for the given cluster name. A miss suggests the
// closest known name.
func (r *Registry) Get(name string) (*MachineProfile, error) {
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}

	if suggestion := r.closest(name); suggestion != "" {
		return nil, chiroperrors.Newf(chiroperrors.ErrCodeNotFound,
			"no profile for cluster %q (did you mean %q?)", name, suggestion)
	}
	return nil, chiroperrors.Newf(chiroperrors.ErrCodeNotFound, "no profile for cluster %q", name)
}

// Names returns all cluster names in sorted order.
func (r *Registry) Names() []string {
	return sortedKeys(r.profiles)
}

// Count returns the number of loaded profiles.
func (r *Registry) Count() int {
	return len(r.profiles)
}

// Save writes the registry back in its persisted format. Used by the derive
// command's append path; existing entries are preserved by construction
// since the registry was loaded from the same file.
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

// Add registers a new profile. A key collision is an error unless force is
// set; the file is append-only source data and silent overwrites would lose
// hand-tuned entries.
func (r *Registry) Add(p *MachineProfile, force bool) error {
	if p.Cluster == "" {
		return chiroperrors.New(chiroperrors.ErrCodeValidation, "profile has no cluster name")
	}
	if violations := p.validate(p.Cluster, nil); len(violations) > 0 {
		return chiroperrors.Wrap(&ValidationError{Violations: violations},
			chiroperrors.ErrCodeValidation, "invalid profile")
	}
	if _, exists := r.profiles[p.Cluster]; exists && !force {
		return chiroperrors.Newf(chiroperrors.ErrCodeValidation,
			"profile %q already exists (use --force to replace)", p.Cluster)
	}
	r.profiles[p.Cluster] = p
	return nil
}

// closest finds the known name with the smallest edit distance, within a
// sane bound so wild typos do not produce absurd suggestions.
func (r *Registry) closest(name string) string {
	best := ""
	bestDist := 4
	for _, candidate := range r.Names() {
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}

func sortedKeys(m map[string]*MachineProfile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
