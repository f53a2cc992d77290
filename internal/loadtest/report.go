package loadtest

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	blue   = color.New(color.FgBlue)
)

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// PrintReport writes the summary in the same layout as the progress output.
func PrintReport(w io.Writer, s Summary) {
	rule := strings.Repeat("=", 70)
	cyan.Fprintln(w, "\n"+rule)
	cyan.Fprintln(w, "LOAD TEST RESULTS")
	cyan.Fprintln(w, rule)

	yellow.Fprintln(w, "\nRequests:")
	fmt.Fprintf(w, "   Total sent:          %d\n", s.Total)
	green.Fprintf(w, "   Success (200):       %d (%.2f%%)\n", s.Success, s.SuccessRate())
	yellow.Fprintf(w, "   Duplicates (409):    %d\n", s.Duplicates)
	yellow.Fprintf(w, "   Bad Request (400):   %d\n", s.BadRequest)
	red.Fprintf(w, "   Errors:              %d (%.2f%%)\n", s.Errors, s.ErrorRate())

	yellow.Fprintln(w, "\nPerformance:")
	fmt.Fprintf(w, "   Elapsed:             %.2fs\n", s.Elapsed.Seconds())
	blue.Fprintf(w, "   Requests/second:     %.2f req/s\n", s.RPS())
	green.Fprintf(w, "   Min:                 %s\n", ms(s.Min))
	red.Fprintf(w, "   Max:                 %s\n", ms(s.Max))
	blue.Fprintf(w, "   Average:             %s\n", ms(s.Avg))
	blue.Fprintf(w, "   Median:              %s\n", ms(s.Median))

	if len(s.Percentiles) > 0 {
		yellow.Fprintln(w, "\nPercentiles:")
		for _, p := range Percentiles {
			c := blue
			switch p {
			case 99:
				c = red
			case 95:
				c = yellow
			}
			c.Fprintf(w, "   p%d: %s\n", p, ms(s.Percentiles[p]))
		}
	}

	if len(s.StatusCodes) > 0 {
		yellow.Fprintln(w, "\nStatus codes:")
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			c := red
			switch code {
			case 200:
				c = green
			case 409:
				c = yellow
			}
			n := s.StatusCodes[code]
			c.Fprintf(w, "   %d: %d (%.2f%%)\n", code, n, rate(n, s.Total))
		}
	}

	if s.Degraded {
		red.Fprintln(w, "\nWARNING: degradation detected")
		red.Fprintf(w, "   Recent average:  %s\n", ms(s.RecentAvg))
		yellow.Fprintf(w, "   Overall average: %s\n", ms(s.Avg))
		red.Fprintf(w, "   Increase:        %.2f%%\n", (float64(s.RecentAvg)/float64(s.Avg)-1)*100)
	}

	cyan.Fprintln(w, "\n"+rule+"\n")
}
