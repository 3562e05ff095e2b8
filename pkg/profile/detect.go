package profile

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// hardwareInfo is the subset of lscpu output a profile needs.
type hardwareInfo struct {
	cpuThreads     int
	coresPerSocket int
	sockets        int
	threadsPerCore int
	cpuModel       string
	cpuBaseMHz     int
	cpuMaxMHz      int
}

// Detect builds a profile for the local machine from lscpu and free
// output and derives its stress parameters.
func Detect(ctx context.Context, cluster, site string) (*MachineProfile, error) {
	lscpuOut, err := runCommand(ctx, "lscpu")
	if err != nil {
		return nil, err
	}
	hw, err := parseLSCPU(lscpuOut)
	if err != nil {
		return nil, err
	}

	freeOut, err := runCommand(ctx, "free", "-g")
	if err != nil {
		return nil, err
	}
	memoryGB, err := parseFreeTotal(freeOut)
	if err != nil {
		return nil, err
	}

	p := &MachineProfile{
		Cluster:        cluster,
		Site:           site,
		CPUThreads:     hw.cpuThreads,
		CPUCores:       hw.coresPerSocket * hw.sockets,
		Sockets:        hw.sockets,
		ThreadsPerCore: hw.threadsPerCore,
		MemoryGB:       memoryGB,
		CPUModel:       hw.cpuModel,
		CPUBaseMHz:     hw.cpuBaseMHz,
		CPUMaxMHz:      hw.cpuMaxMHz,
	}
	p.Derive()
	return p, nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", chiroperrors.Wrap(err, chiroperrors.ErrCodeInternal,
			fmt.Sprintf("failed to run %s", name))
	}
	return string(out), nil
}

// parseLSCPU extracts the hardware fields from lscpu's key: value lines.
func parseLSCPU(output string) (hardwareInfo, error) {
	var hw hardwareInfo
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "CPU(s)":
			hw.cpuThreads = atoiOrZero(value)
		case "Thread(s) per core":
			hw.threadsPerCore = atoiOrZero(value)
		case "Core(s) per socket":
			hw.coresPerSocket = atoiOrZero(value)
		case "Socket(s)":
			hw.sockets = atoiOrZero(value)
		case "Model name":
			hw.cpuModel = value
		case "CPU max MHz":
			hw.cpuMaxMHz = mhzOrZero(value)
		case "CPU min MHz":
			hw.cpuBaseMHz = mhzOrZero(value)
		}
	}

	if hw.cpuThreads == 0 || hw.coresPerSocket == 0 || hw.sockets == 0 {
		return hw, chiroperrors.New(chiroperrors.ErrCodeInternal,
			"lscpu output is missing CPU(s), Core(s) per socket or Socket(s)")
	}
	return hw, nil
}

// parseFreeTotal reads the total column of free -g's Mem: line.
func parseFreeTotal(output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.Atoi(fields[1])
	}
	return 0, chiroperrors.New(chiroperrors.ErrCodeInternal, "free output has no Mem: line")
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// mhzOrZero parses lscpu's fractional MHz values, truncating to int.
func mhzOrZero(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
