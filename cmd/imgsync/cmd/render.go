package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"

	"github.com/aweris/imgsync"
)

// progressRenderer prints pull progress to a terminal. Concurrent pulls
// call Handle from several goroutines.
type progressRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	bar     progress.Model
	percent map[string]int
	open    bool
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{
		w:       w,
		bar:     progress.New(progress.WithGradient("#007BC0", "#011E5C"), progress.WithWidth(40)),
		percent: make(map[string]int),
	}
}

func (r *progressRenderer) Handle(ev imgsync.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Stage {
	case imgsync.StageFetchingManifest:
		r.endLine()
		fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Pulling"), ev.Image)
	case imgsync.StageDownloading:
		r.download(ev)
	case imgsync.StageSaving:
		r.endLine()
		fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Saving"), ev.Image)
	case imgsync.StageDone:
		r.endLine()
		delete(r.percent, ev.Image)
		fmt.Fprintf(r.w, "%s %s\n", successStyle.Render("Success!"), ev.Path)
	case imgsync.StageFailed:
		r.endLine()
		delete(r.percent, ev.Image)
	}
}

func (r *progressRenderer) download(ev imgsync.ProgressEvent) {
	if ev.Total <= 0 {
		fmt.Fprintf(r.w, "\r%s %s", mutedStyle.Render(ev.Image), units.HumanSize(float64(ev.Bytes)))
		r.open = true
		return
	}

	pct := int(ev.Bytes * 100 / ev.Total)
	if last, ok := r.percent[ev.Image]; ok && last == pct {
		return
	}
	r.percent[ev.Image] = pct

	fmt.Fprintf(r.w, "\r%s %s / %s",
		r.bar.ViewAs(float64(ev.Bytes)/float64(ev.Total)),
		units.HumanSize(float64(ev.Bytes)),
		units.HumanSize(float64(ev.Total)),
	)
	r.open = true
}

func (r *progressRenderer) endLine() {
	if r.open {
		fmt.Fprintln(r.w)
		r.open = false
	}
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("ERROR"), err)
}
