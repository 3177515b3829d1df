package sysmem

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// cgroupRoot is the cgroup filesystem mountpoint
var cgroupRoot = "/sys/fs/cgroup"

// DiagnosticInfo describes the memory environment a run will execute in
type DiagnosticInfo struct {
	OS                string   `json:"os"`
	Arch              string   `json:"arch"`
	PageSize          int      `json:"page_size"`
	PercentSupported  bool     `json:"percent_supported"`
	TotalBytes        uint64   `json:"total_bytes,omitempty"`
	FreeBytes         uint64   `json:"free_bytes,omitempty"`
	CgroupsVersion    string   `json:"cgroups_version"`
	CgroupMemoryLimit string   `json:"cgroup_memory_limit,omitempty"`
	AddressSpaceLimit string   `json:"address_space_limit"`
	AddressSpaceFree  uint64   `json:"address_space_available,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// Diagnose returns diagnostic information about the current system
func Diagnose() DiagnosticInfo {
	info := DiagnosticInfo{
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
		PageSize:         os.Getpagesize(),
		PercentSupported: PercentSupported,
	}

	if PercentSupported {
		if total, err := TotalBytes(); err == nil {
			info.TotalBytes = total
		} else {
			info.Warnings = append(info.Warnings, "total memory query failed: "+err.Error())
		}
		if free, err := FreeBytes(); err == nil {
			info.FreeBytes = free
		} else {
			info.Warnings = append(info.Warnings, "free memory query failed: "+err.Error())
		}
	} else {
		info.Warnings = append(info.Warnings,
			"physical memory figures unavailable - percentage sizes (N%) are disabled",
		)
	}

	if runtime.GOOS == "linux" {
		info.CgroupsVersion = detectCgroupsVersion()
		info.CgroupMemoryLimit = cgroupMemoryLimit(info.CgroupsVersion)
	}

	if limit, err := addressSpaceLimit(); err == nil {
		info.AddressSpaceLimit = limit
	} else {
		info.AddressSpaceLimit = "unknown"
	}

	if info.CgroupMemoryLimit != "" && info.CgroupMemoryLimit != "max" {
		info.Warnings = append(info.Warnings,
			"process runs under a cgroup memory limit of "+info.CgroupMemoryLimit+
				" - the OOM killer acts at this limit, not at physical memory",
		)
		if info.FreeBytes > 0 {
			info.Recommendations = append(info.Recommendations,
				"percentage sizes are computed from system free memory ("+humanize.IBytes(info.FreeBytes)+
					") and may exceed the cgroup limit",
			)
		}
	}

	if available, ok := AddressSpaceAvailable(); ok {
		info.AddressSpaceFree = available
		info.Warnings = append(info.Warnings,
			"address space is limited to "+info.AddressSpaceLimit+" ("+humanize.IBytes(available)+
				" still mappable) - allocation stops short of the limit to leave room for the Go runtime",
		)
	}

	return info
}

// detectCgroupsVersion attempts to detect which cgroups version is mounted
func detectCgroupsVersion() string {
	if _, err := os.Stat(filepath.Join(cgroupRoot, "cgroup.controllers")); err == nil {
		return "v2"
	}

	if _, err := os.Stat(filepath.Join(cgroupRoot, "memory")); err == nil {
		return "v1"
	}

	return "unavailable"
}

// cgroupMemoryLimit reads the memory limit of the cgroup mounted at
// cgroupRoot. It returns "max" when unlimited and "" when unreadable.
func cgroupMemoryLimit(version string) string {
	var path string
	switch version {
	case "v2":
		path = filepath.Join(cgroupRoot, "memory.max")
	case "v1":
		path = filepath.Join(cgroupRoot, "memory", "memory.limit_in_bytes")
	default:
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	raw := strings.TrimSpace(string(data))
	if raw == "max" {
		return "max"
	}

	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return ""
	}
	// cgroups v1 reports "unlimited" as a page-aligned near-MaxInt64 value
	if n >= 1<<62 {
		return "max"
	}
	return humanize.IBytes(n)
}
