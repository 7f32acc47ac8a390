package systeminfo

import (
	"os"
	"path/filepath"

	"github.com/crishoj/odf-fetch/logger"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
)

// SystemInfo describes the machine a run mirrors onto. It is recorded in the
// run report.
type SystemInfo struct {
	Hostname          string  `json:"hostname"`
	OS                string  `json:"os"`
	Platform          string  `json:"platform"`
	PlatformVersion   string  `json:"platform_version"`
	KernelVersion     string  `json:"kernel_version"`
	TargetVolume      string  `json:"target_volume"`
	TargetTotalBytes  uint64  `json:"target_total_bytes"`
	TargetFreeBytes   uint64  `json:"target_free_bytes"`
	TargetUsedPercent float64 `json:"target_used_percent"`
}

// GetSystemInfo collects host details and the free space of the volume
// holding target. Failures leave the affected fields empty.
func GetSystemInfo(target string) *SystemInfo {
	sysInfo := &SystemInfo{}
	if err := gatherHost(sysInfo); err != nil {
		logger.Warnf("Failed to gather host information: %v", err)
	}
	if err := gatherTargetUsage(sysInfo, target); err != nil {
		logger.Warnf("Failed to gather disk usage for %s: %v", target, err)
	}
	return sysInfo
}

// LowOnSpace reports whether the target volume is known to have fewer than
// minFree bytes available.
func (s *SystemInfo) LowOnSpace(minFree uint64) bool {
	if s == nil || s.TargetTotalBytes == 0 {
		return false
	}
	return s.TargetFreeBytes < minFree
}

func gatherHost(sysInfo *SystemInfo) error {
	info, err := host.Info()
	if err != nil {
		return err
	}
	sysInfo.Hostname = info.Hostname
	sysInfo.OS = info.OS
	sysInfo.Platform = info.Platform
	sysInfo.PlatformVersion = info.PlatformVersion
	sysInfo.KernelVersion = info.KernelVersion
	return nil
}

func gatherTargetUsage(sysInfo *SystemInfo, target string) error {
	volume := existingAncestor(target)
	usage, err := disk.Usage(volume)
	if err != nil {
		return err
	}
	sysInfo.TargetVolume = volume
	sysInfo.TargetTotalBytes = usage.Total
	sysInfo.TargetFreeBytes = usage.Free
	sysInfo.TargetUsedPercent = usage.UsedPercent
	return nil
}

// existingAncestor returns path or its closest existing parent, since the
// target directory is only created by the scan.
func existingAncestor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p := abs
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
