package profile

// Memory tiers for the derived vm-stress allocation. Nodes with more RAM
// can dedicate a larger share to the stressor without starving the system.
const (
	memTierHighGB   = 500
	memTierMediumGB = 300

	vmMemoryHigh   Percent = 80
	vmMemoryMedium Percent = 75
	vmMemoryNormal Percent = 70
)

// DeriveStress computes the recommended stress parameters for a node:
// every hardware thread is stressed, half the physical cores drive vm
// workers (floor division), and the memory share follows the RAM tier.
// memoryGB <= 0 selects the normal tier.
func DeriveStress(cpuThreads, cpuCores, memoryGB int) (stressCPUThreads, stressVMWorkers int, vmMemory Percent, method CPUMethod) {
	stressCPUThreads = cpuThreads
	stressVMWorkers = cpuCores / 2

	switch {
	case memoryGB >= memTierHighGB:
		vmMemory = vmMemoryHigh
	case memoryGB >= memTierMediumGB:
		vmMemory = vmMemoryMedium
	default:
		vmMemory = vmMemoryNormal
	}
	return stressCPUThreads, stressVMWorkers, vmMemory, CPUMethodMatrixProd
}

// Derive fills the stress fields of a profile in place from its hardware
// fields, leaving already-set fields untouched.
func (p *MachineProfile) Derive() {
	threads, workers, mem, method := DeriveStress(p.CPUThreads, p.CPUCores, p.MemoryGB)
	if p.StressCPUThreads == 0 {
		p.StressCPUThreads = threads
	}
	if p.StressVMWorkers == 0 {
		p.StressVMWorkers = workers
	}
	if p.StressVMMemory == 0 {
		p.StressVMMemory = mem
	}
	if p.CPUMethod == "" {
		p.CPUMethod = method
	}
}
