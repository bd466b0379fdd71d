// Package cpu identifies the processor generation and its clock speed.
package cpu

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/afero"

	"github.com/frobware/go-opstart"
)

// ErrUnsupportedCPU is returned when the processor has no supported
// performance counters.
var ErrUnsupportedCPU = errors.New("unsupported cpu")

// CPUInfoPath is consulted for the clock speed when cpuid cannot
// report it.
const CPUInfoPath = "/proc/cpuinfo"

// Identity is the subset of cpuid information used for detection.
type Identity struct {
	Vendor cpuid.Vendor
	Family int
	Model  int
	Hz     int64
}

// Host returns the identity of the running processor.
func Host() Identity {
	return Identity{
		Vendor: cpuid.CPU.VendorID,
		Family: cpuid.CPU.Family,
		Model:  cpuid.CPU.Model,
		Hz:     cpuid.CPU.Hz,
	}
}

// Detect returns the CPU type of the running processor.
func Detect() (opstart.CPUType, error) {
	return Classify(Host())
}

// Classify maps a processor identity to a CPU type.
func Classify(id Identity) (opstart.CPUType, error) {
	switch id.Vendor {
	case cpuid.Intel:
		if id.Family != 6 {
			break
		}
		switch id.Model {
		case 1:
			return opstart.CPUPPro, nil
		case 3, 5, 6:
			return opstart.CPUPII, nil
		case 7, 8, 10, 11:
			return opstart.CPUPIII, nil
		}
	case cpuid.AMD:
		switch id.Family {
		case 6:
			return opstart.CPUAthlon, nil
		case 15:
			return opstart.CPUHammer, nil
		}
	}
	return 0, fmt.Errorf("%w: vendor %s family %d model %d", ErrUnsupportedCPU, id.Vendor, id.Family, id.Model)
}

// SpeedMHz returns the processor clock speed in MHz, or 0 if it
// cannot be determined.
func SpeedMHz(fsys afero.Fs) uint64 {
	return speedMHz(Host(), fsys)
}

func speedMHz(id Identity, fsys afero.Fs) uint64 {
	if id.Hz > 0 {
		return uint64(id.Hz / 1_000_000)
	}
	if fsys == nil {
		return 0
	}
	mhz, err := cpuinfoMHz(fsys, CPUInfoPath)
	if err != nil {
		return 0
	}
	return mhz
}

// cpuinfoMHz returns the first "cpu MHz" value in a cpuinfo file.
func cpuinfoMHz(fsys afero.Fs, path string) (uint64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "cpu MHz" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, fmt.Errorf("parse cpu MHz %q: %w", value, err)
		}
		return uint64(v), nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no cpu MHz in %s", path)
}
