package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// grosProfile mirrors the production entry for the gros cluster in Nancy.
const grosProfile = `{
  "gros": {
    "cluster": "gros",
    "site": "nancy",
    "cpu_threads": 72,
    "cpu_cores": 36,
    "sockets": 2,
    "threads_per_core": 2,
    "memory_gb": 96,
    "cpu_model": "Intel Xeon Gold 5220",
    "cpu_base_mhz": 2200,
    "cpu_max_mhz": 3900,
    "stress_cpu_threads": 72,
    "stress_vm_workers": 18,
    "stress_vm_memory": "70%",
    "cpu_method": "matrixprod"
  }
}`

func TestParseValidProfile(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)
	assert.Equal(t, 1, registry.Count())

	p, err := registry.Get("gros")
	assert.NoError(t, err)
	assert.Equal(t, "nancy", p.Site)
	assert.Equal(t, 72, p.CPUThreads)
	assert.Equal(t, 72, p.StressCPUThreads)
	assert.Equal(t, Percent(70), p.StressVMMemory)
	assert.Equal(t, CPUMethodMatrixProd, p.CPUMethod)
}

func TestParseRoundTrip(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "machine_profiles.json")
	assert.NoError(t, registry.Save(path))

	reloaded, err := Load(path)
	assert.NoError(t, err)

	orig, _ := registry.Get("gros")
	clone, err := reloaded.Get("gros")
	assert.NoError(t, err)
	assert.Equal(t, orig, clone)

	// The percent notation must survive the round trip verbatim.
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"70%"`)
}

func TestParseAggregatesAllViolations(t *testing.T) {
	bad := `{
	  "alpha": {
	    "cluster": "alpha",
	    "cpu_threads": 8,
	    "cpu_cores": 4,
	    "memory_gb": 64,
	    "stress_cpu_threads": 16,
	    "stress_vm_workers": 2,
	    "stress_vm_memory": "70%",
	    "cpu_method": "matrixprod"
	  },
	  "beta": {
	    "cluster": "beta",
	    "cpu_threads": 0,
	    "cpu_cores": 4,
	    "memory_gb": 64,
	    "stress_vm_memory": "150%",
	    "cpu_method": "spin"
	  }
	}`

	_, err := Parse([]byte(bad))
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeValidation, chiroperrors.CodeOf(err))

	// Violations from both profiles are reported at once.
	assert.Contains(t, err.Error(), "stress_cpu_threads")
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")
	assert.Contains(t, err.Error(), "cpu_method")
}

func TestParseRejectsKeyClusterDisagreement(t *testing.T) {
	doc := `{
	  "gros": {
	    "cluster": "grisou",
	    "cpu_threads": 8,
	    "cpu_cores": 4,
	    "memory_gb": 64,
	    "stress_cpu_threads": 8,
	    "stress_vm_workers": 2,
	    "stress_vm_memory": "70%",
	    "cpu_method": "matrixprod"
	  }
	}`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disagrees")
}

func TestGetSuggestsClosestName(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)

	_, err = registry.Get("gos")
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeNotFound, chiroperrors.CodeOf(err))
	assert.Contains(t, err.Error(), `did you mean "gros"`)
}

func TestGetNoSuggestionForWildTypo(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)

	_, err = registry.Get("paravance")
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestPercentUnmarshalForms(t *testing.T) {
	for _, raw := range []string{`"70%"`, `"70"`, `70`} {
		var p Percent
		assert.NoError(t, json.Unmarshal([]byte(raw), &p), raw)
		assert.Equal(t, Percent(70), p, raw)
	}

	var p Percent
	assert.Error(t, json.Unmarshal([]byte(`"abc%"`), &p))
}

func TestPercentMarshalCanonicalForm(t *testing.T) {
	data, err := json.Marshal(Percent(75))
	assert.NoError(t, err)
	assert.Equal(t, `"75%"`, string(data))
}

func TestDeriveStressFloorsWorkers(t *testing.T) {
	threads, workers, mem, method := DeriveStress(64, 64, 128)
	assert.Equal(t, 64, threads)
	assert.Equal(t, 32, workers)
	assert.Equal(t, Percent(70), mem)
	assert.Equal(t, CPUMethodMatrixProd, method)

	_, workers, _, _ = DeriveStress(65, 65, 128)
	assert.Equal(t, 32, workers)
}

func TestDeriveStressMemoryTiers(t *testing.T) {
	cases := []struct {
		memoryGB int
		want     Percent
	}{
		{96, 70},
		{299, 70},
		{300, 75},
		{499, 75},
		{500, 80},
		{768, 80},
		{0, 70},
	}
	for _, tc := range cases {
		_, _, mem, _ := DeriveStress(8, 4, tc.memoryGB)
		assert.Equal(t, tc.want, mem, "memory_gb=%d", tc.memoryGB)
	}
}

func TestDeriveKeepsExplicitFields(t *testing.T) {
	p := &MachineProfile{
		Cluster:          "gros",
		CPUThreads:       72,
		CPUCores:         36,
		MemoryGB:         96,
		StressCPUThreads: 36, // hand-tuned, must survive
	}
	p.Derive()

	assert.Equal(t, 36, p.StressCPUThreads)
	assert.Equal(t, 18, p.StressVMWorkers)
	assert.Equal(t, Percent(70), p.StressVMMemory)
	assert.Equal(t, CPUMethodMatrixProd, p.CPUMethod)
}

func TestAddRejectsCollisionWithoutForce(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)

	dup := &MachineProfile{Cluster: "gros", CPUThreads: 8, CPUCores: 4, MemoryGB: 64}
	dup.Derive()

	err = registry.Add(dup, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	assert.NoError(t, registry.Add(dup, true))
	got, err := registry.Get("gros")
	assert.NoError(t, err)
	assert.Equal(t, 8, got.CPUThreads)
}

func TestParseLSCPU(t *testing.T) {
	out := `Architecture:             x86_64
CPU(s):                   72
On-line CPU(s) list:      0-71
Thread(s) per core:       2
Core(s) per socket:       18
Socket(s):                2
NUMA node(s):             2
Model name:               Intel(R) Xeon(R) Gold 5220 CPU @ 2.20GHz
CPU max MHz:              3900.0000
CPU min MHz:              1000.0000
`
	hw, err := parseLSCPU(out)
	assert.NoError(t, err)
	assert.Equal(t, 72, hw.cpuThreads)
	assert.Equal(t, 2, hw.threadsPerCore)
	assert.Equal(t, 18, hw.coresPerSocket)
	assert.Equal(t, 2, hw.sockets)
	assert.Equal(t, "Intel(R) Xeon(R) Gold 5220 CPU @ 2.20GHz", hw.cpuModel)
	assert.Equal(t, 3900, hw.cpuMaxMHz)
	assert.Equal(t, 1000, hw.cpuBaseMHz)
}

func TestParseLSCPUMissingFields(t *testing.T) {
	_, err := parseLSCPU("Architecture: x86_64\n")
	assert.Error(t, err)
}

func TestParseFreeTotal(t *testing.T) {
	out := `              total        used        free      shared  buff/cache   available
Mem:             94          10          70           0          13          82
Swap:             0           0           0
`
	got, err := parseFreeTotal(out)
	assert.NoError(t, err)
	assert.Equal(t, 94, got)

	_, err = parseFreeTotal("garbage")
	assert.Error(t, err)
}

func TestProfileTableRows(t *testing.T) {
	registry, err := Parse([]byte(grosProfile))
	assert.NoError(t, err)
	p, _ := registry.Get("gros")

	rows := p.TableRows()
	assert.Equal(t, len(p.TableHeaders()), len(rows[0]))
	assert.Equal(t, "gros", rows[0][1])
}
