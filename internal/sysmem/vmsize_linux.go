package sysmem

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
)

var procStatm = "/proc/self/statm"

// mappedBytes returns the virtual memory size of this process
func mappedBytes() (uint64, error) {
	data, err := os.ReadFile(procStatm)
	if err != nil {
		return 0, err
	}
	return parseStatm(data, os.Getpagesize())
}

// parseStatm reads the first statm field, the total program size in pages
func parseStatm(data []byte, pageSize int) (uint64, error) {
	fields := bytes.Fields(data)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty statm")
	}
	pages, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse statm size: %w", err)
	}
	return pages * uint64(pageSize), nil
}
