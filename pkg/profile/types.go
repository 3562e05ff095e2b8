// Package profile manages the machine hardware profiles that parameterize
// stress experiments on Grid'5000 nodes. Profiles are authored out of band
// in a JSON file keyed by cluster name and are immutable during a run; the
// registry only loads, validates, and looks them up.
package profile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CPUMethod is the stress-ng CPU workload used for the experiment.
type CPUMethod string

const (
	CPUMethodMatrixProd CPUMethod = "matrixprod"
	CPUMethodFFT        CPUMethod = "fft"
	CPUMethodFibonacci  CPUMethod = "fibonacci"
	CPUMethodAll        CPUMethod = "all"
)

// IsValid reports whether the method is one of the supported workloads.
func (m CPUMethod) IsValid() bool {
	switch m {
	case CPUMethodMatrixProd, CPUMethodFFT, CPUMethodFibonacci, CPUMethodAll:
		return true
	}
	return false
}

// SupportedCPUMethods lists the valid methods for error messages.
func SupportedCPUMethods() []CPUMethod {
	return []CPUMethod{CPUMethodMatrixProd, CPUMethodFFT, CPUMethodFibonacci, CPUMethodAll}
}

// Percent is a percentage persisted in the profile file's "NN%" notation.
// Bare numbers (quoted or not) are accepted on load for hand-edited files.
type Percent int

// UnmarshalJSON accepts 70, "70" and "70%".
func (p *Percent) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	s = strings.TrimSuffix(s, "%")
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid percentage %s: %w", string(data), err)
	}
	*p = Percent(n)
	return nil
}

// MarshalJSON writes the canonical "NN%" form.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%d%%", int(p)))
}

// MachineProfile describes one cluster's hardware and the stress parameters
// derived for it. Field names follow the persisted JSON schema.
type MachineProfile struct {
	Cluster        string `json:"cluster"`
	Site           string `json:"site"`
	CPUThreads     int    `json:"cpu_threads"`
	CPUCores       int    `json:"cpu_cores"`
	Sockets        int    `json:"sockets,omitempty"`
	ThreadsPerCore int    `json:"threads_per_core,omitempty"`
	MemoryGB       int    `json:"memory_gb"`
	CPUModel       string `json:"cpu_model,omitempty"`
	CPUBaseMHz     int    `json:"cpu_base_mhz,omitempty"`
	CPUMaxMHz      int    `json:"cpu_max_mhz,omitempty"`

	StressCPUThreads int       `json:"stress_cpu_threads"`
	StressVMWorkers  int       `json:"stress_vm_workers"`
	StressVMMemory   Percent   `json:"stress_vm_memory"`
	CPUMethod        CPUMethod `json:"cpu_method"`
}

// Violation records one failed invariant during validation.
type Violation struct {
	Cluster string `json:"cluster" yaml:"cluster"`
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Cluster, v.Field, v.Message)
}

// ValidationError aggregates every violated invariant across all profiles
// in a file, not just the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%d invalid profile field(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// validate checks one profile's invariants, appending to violations.
func (p *MachineProfile) validate(name string, violations []Violation) []Violation {
	add := func(field, format string, args ...any) {
		violations = append(violations, Violation{
			Cluster: name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if p.Cluster != "" && p.Cluster != name {
		add("cluster", "entry key %q disagrees with cluster field %q", name, p.Cluster)
	}
	if p.CPUThreads <= 0 {
		add("cpu_threads", "must be positive, got %d", p.CPUThreads)
	}
	if p.CPUCores <= 0 {
		add("cpu_cores", "must be positive, got %d", p.CPUCores)
	}
	if p.CPUCores > 0 && p.ThreadsPerCore > 0 && p.CPUCores*p.ThreadsPerCore != p.CPUThreads {
		add("threads_per_core", "cpu_cores (%d) x threads_per_core (%d) = %d, expected cpu_threads %d",
			p.CPUCores, p.ThreadsPerCore, p.CPUCores*p.ThreadsPerCore, p.CPUThreads)
	}
	if p.StressCPUThreads > p.CPUThreads {
		add("stress_cpu_threads", "%d exceeds cpu_threads %d", p.StressCPUThreads, p.CPUThreads)
	}
	if p.StressVMMemory <= 0 || p.StressVMMemory > 100 {
		add("stress_vm_memory", "must be in (0,100], got %d", int(p.StressVMMemory))
	}
	if !p.CPUMethod.IsValid() {
		add("cpu_method", "%q is not one of %v", p.CPUMethod, SupportedCPUMethods())
	}
	return violations
}
