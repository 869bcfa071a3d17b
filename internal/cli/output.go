package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/studiowebux/loadhook/internal/executor"
	"github.com/studiowebux/loadhook/internal/stresstest"
	"github.com/studiowebux/loadhook/internal/types"
)

// ANSI color codes
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
)

func getStatusColor(status int) string {
	switch {
	case executor.IsSuccessStatus(status):
		return colorGreen
	case executor.IsClientErrorStatus(status), executor.IsServerErrorStatus(status):
		return colorRed
	}
	return colorYellow
}

func statusColor(runStatus string) string {
	switch runStatus {
	case stresstest.StatusCompleted, stresstest.StatusStopped:
		return colorGreen
	case stresstest.StatusFailed:
		return colorRed
	default:
		return colorYellow
	}
}

func formatMs(ms float64) string {
	return executor.FormatDuration(int64(ms + 0.5))
}

func formatBytes(n int64) string {
	return executor.FormatSize(n)
}

func writeRequest(sb *strings.Builder, req types.Request) {
	sb.WriteString(fmt.Sprintf("> %s %s\n", req.Method, req.URL))
	if req.Host != "" {
		sb.WriteString(fmt.Sprintf("> Host: %s\n", req.Host))
	}
	req.Headers.Each(func(name, value string) {
		sb.WriteString(fmt.Sprintf("> %s: %s\n", name, value))
	})
	if len(req.Body) > 0 {
		sb.WriteString(">\n")
		sb.WriteString(string(req.Body))
		sb.WriteString("\n")
	}
}

func writeResponse(sb *strings.Builder, res *types.ResponseView) {
	sb.WriteString(fmt.Sprintf("< %s%d%s (%s, %s)\n",
		getStatusColor(res.Status), res.Status, colorReset,
		executor.FormatDuration(res.Duration.Milliseconds()),
		executor.FormatSize(int64(res.Size()))))

	headers := res.Headers()
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("< %s: %s\n", name, headers[name]))
	}
	if body := res.BodyString(); body != "" {
		sb.WriteString("<\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
}

func writeRuns(w io.Writer, runs []*stresstest.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tSTARTED\tSTATUS\tHOOKS\tWORKERS\tITERATIONS\tFAILURES\tAVG\tURL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.UUID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Status,
			r.Hooks,
			r.Goroutines,
			r.TotalIterations,
			r.Failures(),
			formatMs(r.AvgDurationMs),
			r.URL)
	}
	return tw.Flush()
}
