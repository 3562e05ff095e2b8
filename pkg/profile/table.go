package profile

import "strconv"

// TableHeaders implements serializer.Tabler.
func (p *MachineProfile) TableHeaders() []string {
	return []string{"field", "value"}
}

// TableRows implements serializer.Tabler.
func (p *MachineProfile) TableRows() [][]string {
	return [][]string{
		{"cluster", p.Cluster},
		{"site", p.Site},
		{"cpu threads", strconv.Itoa(p.CPUThreads)},
		{"cpu cores", strconv.Itoa(p.CPUCores)},
		{"sockets", strconv.Itoa(p.Sockets)},
		{"threads/core", strconv.Itoa(p.ThreadsPerCore)},
		{"memory (GB)", strconv.Itoa(p.MemoryGB)},
		{"cpu model", p.CPUModel},
		{"cpu freq (MHz)", strconv.Itoa(p.CPUBaseMHz) + "-" + strconv.Itoa(p.CPUMaxMHz)},
		{"stress cpu threads", strconv.Itoa(p.StressCPUThreads)},
		{"stress vm workers", strconv.Itoa(p.StressVMWorkers)},
		{"stress vm memory", strconv.Itoa(int(p.StressVMMemory)) + "%"},
		{"cpu method", string(p.CPUMethod)},
	}
}
