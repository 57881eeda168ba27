package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/pkg/schema"
)

// Status cells are colored in every row, the header included, so that the
// escape sequences add the same width to each line of a column.
var (
	headerColor = color.New(color.FgCyan).SprintFunc()
	okColor     = color.New(color.FgGreen).SprintFunc()
	failColor   = color.New(color.FgRed).SprintFunc()
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func status(ok bool, failLabel string) string {
	if ok {
		return okColor("OK")
	}
	return failColor(failLabel)
}

func renderChecks(w io.Writer, results []actions.CheckResult) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "#\tNAME\t%s\tDETAIL\n", headerColor("RESULT"))
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index, r.Name, status(r.OK(), r.Status), dash(r.Error))
	}
	return tw.Flush()
}

func renderOutcomes(w io.Writer, outcomes []schema.StepOutcome) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "#\tACTION\t%s\tDETAIL\n", headerColor("RESULT"))
	for _, o := range outcomes {
		detail := o.Detail
		if o.ArtifactPath != "" {
			detail += " (artifact: " + o.ArtifactPath + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.Index, o.Name, status(o.OK, "FAIL"), detail)
	}
	return tw.Flush()
}

func renderReport(w io.Writer, rep schema.DailyReport) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "#\tURL\t%s\tCOMPANY\tTITLE\tERROR\n", headerColor("RESULT"))
	for i, item := range rep.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, item.Job.URL, status(item.OK, "FAIL"),
			dash(item.Job.Company), dash(item.Job.Title), dash(item.Error))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
