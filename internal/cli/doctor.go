package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/cloudbedlam/eatmem/internal/memory"
	"github.com/cloudbedlam/eatmem/internal/sysmem"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// doctorCmd diagnoses the memory environment
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the memory environment",
	Long:  `Report memory figures, limits and allocator support for this system (OS, cgroups, rlimits, etc.).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.OutOrStdout())
	},
}

// doctorReport is the doctor output: system diagnostics plus how a run
// would be configured here
type doctorReport struct {
	sysmem.DiagnosticInfo
	DefaultAllocator string `json:"default_allocator"`
	MmapSupported    bool   `json:"mmap_supported"`
	ChunkSize        int    `json:"chunk_size"`
}

func runDoctor(w io.Writer) error {
	report := doctorReport{
		DiagnosticInfo:   sysmem.Diagnose(),
		DefaultAllocator: memory.DefaultAllocator(),
		MmapSupported:    memory.MmapSupported(),
		ChunkSize:        memory.DefaultChunkSize,
	}
	if cfg != nil {
		report.ChunkSize = cfg.ChunkSize
	}

	if jsonOutput {
		return outputDoctorJSON(w, &report)
	}
	return outputDoctorText(w, &report)
}

func outputDoctorText(w io.Writer, r *doctorReport) error {
	fmt.Fprintf(w, "eatmem Diagnostics\n")
	fmt.Fprintf(w, "==================\n\n")

	fmt.Fprintf(w, "System Information:\n")
	fmt.Fprintf(w, "  OS:          %s\n", r.OS)
	fmt.Fprintf(w, "  Arch:        %s\n", r.Arch)
	fmt.Fprintf(w, "  Go Version:  %s\n", runtime.Version())
	fmt.Fprintf(w, "  Page Size:   %s\n", humanize.IBytes(uint64(r.PageSize)))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Memory:\n")
	if r.TotalBytes > 0 {
		fmt.Fprintf(w, "  Total:       %s\n", humanize.IBytes(r.TotalBytes))
		fmt.Fprintf(w, "  Free:        %s\n", humanize.IBytes(r.FreeBytes))
	} else {
		fmt.Fprintf(w, "  Total:       unknown\n")
		fmt.Fprintf(w, "  Free:        unknown\n")
	}
	fmt.Fprintf(w, "  Address space limit: %s\n", r.AddressSpaceLimit)
	if r.AddressSpaceFree > 0 {
		fmt.Fprintf(w, "  Address space free:  %s\n", humanize.IBytes(r.AddressSpaceFree))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Capabilities:\n")
	printCapability(w, "Percent sizes (N%)", r.PercentSupported)
	printCapability(w, "mmap allocator", r.MmapSupported)
	fmt.Fprintf(w, "  Default allocator: %s\n", r.DefaultAllocator)
	fmt.Fprintf(w, "  Chunk size:        %d bytes\n", r.ChunkSize)
	fmt.Fprintln(w)

	if r.OS == "linux" {
		fmt.Fprintf(w, "Linux-Specific Information:\n")
		fmt.Fprintf(w, "  Cgroups Version:     %s\n", r.CgroupsVersion)
		if r.CgroupMemoryLimit != "" {
			fmt.Fprintf(w, "  Cgroup Memory Limit: %s\n", r.CgroupMemoryLimit)
		}
		fmt.Fprintln(w)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings:\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  [!] %s\n", warning)
		}
		fmt.Fprintln(w)
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintf(w, "Recommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  [*] %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func outputDoctorJSON(w io.Writer, r *doctorReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func printCapability(w io.Writer, name string, enabled bool) {
	status := "✗"
	if enabled {
		status = "✓"
	}
	fmt.Fprintf(w, "  [%s] %s\n", status, name)
}
