package internal

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type Device string

const (
	DeviceMPS  Device = "mps"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// ResolveDevice maps a configured preference to a device. "auto" and
// unknown values inspect the host.
func ResolveDevice(preference string) Device {
	switch Device(strings.ToLower(strings.TrimSpace(preference))) {
	case DeviceCPU:
		return DeviceCPU
	case DeviceCUDA:
		return DeviceCUDA
	case DeviceMPS:
		return DeviceMPS
	default:
		return DetectHardware()
	}
}

func DetectHardware() Device {
	if isMPS() {
		return DeviceMPS
	}
	if isCUDA() {
		return DeviceCUDA
	}
	return DeviceCPU
}

// Accelerated reports whether model layers should be offloaded to a GPU.
func (d Device) Accelerated() bool {
	return d == DeviceCUDA || d == DeviceMPS
}

func isMPS() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func isCUDA() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}
