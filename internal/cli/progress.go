package cli

import (
	"fmt"
	"io"

	"github.com/cloudbedlam/eatmem/internal/memory"
	"github.com/dustin/go-humanize"
)

// newProgressPrinter reports acquisition progress on w. On a terminal the
// line is redrawn in place; otherwise each report is its own line.
func newProgressPrinter(w io.Writer, tty bool) memory.ProgressFunc {
	return func(acquired, target int64) {
		line := fmt.Sprintf("acquired %s of %s (%.0f%%)",
			humanize.IBytes(uint64(acquired)), humanize.IBytes(uint64(target)), percentDone(acquired, target))

		if !tty {
			fmt.Fprintln(w, line)
			return
		}
		fmt.Fprintf(w, "\r%s", line)
		if acquired >= target {
			fmt.Fprintln(w)
		}
	}
}

func percentDone(acquired, target int64) float64 {
	if target <= 0 || acquired >= target {
		return 100
	}
	return float64(acquired) * 100 / float64(target)
}
