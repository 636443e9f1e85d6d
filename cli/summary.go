package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/a2y-d5l/forge"
)

// Describe labels a task result: SUCCESS, SKIPPED, FAILING or ALLOWED for
// a tolerated failure.
func Describe(r forge.TaskResult) string {
	switch {
	case r.Status == forge.ResultSkipped:
		return "SKIPPED"
	case r.OK():
		return "SUCCESS"
	case r.ContinueOnError:
		return "ALLOWED"
	default:
		return "FAILING"
	}
}

// Summary writes the outcome of res followed by one line per task, in
// execution order.
func Summary(w io.Writer, res forge.PipelineResult, colored bool) {
	paint := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	green, yellow, red, faint := paint(color.FgGreen), paint(color.FgYellow), paint(color.FgRed), paint(color.Faint)

	outcome := green.Sprint("SUCCESS")
	switch {
	case res.Canceled:
		outcome = yellow.Sprint("CANCELED")
	case !res.OK():
		outcome = red.Sprint("FAILING")
	}
	fmt.Fprintf(w, "Done %s (%s)\n", outcome, res.Duration.Round(time.Millisecond))

	n := len(res.Tasks)
	for i, tr := range res.Tasks {
		label := Describe(tr)
		switch label {
		case "SUCCESS":
			label = green.Sprint(label)
		case "FAILING":
			label = red.Sprint(label)
		default:
			label = yellow.Sprint(label)
		}
		fmt.Fprintf(w, "(%d/%d)\t%s\t%s\t%s\n", i+1, n, label, faint.Sprint(tr.Duration.Round(time.Millisecond)), tr.Name)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "%s %v\n", red.Sprint("error:"), res.Err)
	}
	for _, name := range res.Unmatched {
		fmt.Fprintf(w, "%s unknown task %s\n", yellow.Sprint("warning:"), name)
	}
}
