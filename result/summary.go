package result

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Status is the overall run outcome.
type Status int

const (
	Completed Status = iota
	CompletedWithWarnings
	Failed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case CompletedWithWarnings:
		return "completed with warnings"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ComponentSummary is one row of the end-of-run report.
type ComponentSummary struct {
	Name        string
	Rows        int
	Finished    bool
	Warnings    int
}

// Summary is the end-of-run report: overall status plus one row of
// bookkeeping per component.
type Summary struct {
	Status     Status
	Err        error
	Components []ComponentSummary
}

// Render renders the summary as a console table.
func (s Summary) Render() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Run summary: %s", s.Status))
	t.AppendHeader(table.Row{"Component", "Rows", "Finished", "Warnings"})
	for _, c := range s.Components {
		t.AppendRow(table.Row{c.Name, c.Rows, c.Finished, c.Warnings})
	}
	out := t.Render()
	if s.Err != nil {
		out += fmt.Sprintf("\nerror: %v\n", s.Err)
	}
	return out
}
