package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/status"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusColors = map[image.Status]lipgloss.Color{
		image.Built:       lipgloss.Color("10"),
		image.Skipped:     lipgloss.Color("12"),
		image.Error:       lipgloss.Color("9"),
		image.ParentError: lipgloss.Color("208"),
	}
)

// WriteSummary renders the run summary as a bordered table.
func (r *Results) WriteSummary(w io.Writer) error {
	width := len("IMAGE")
	for _, set := range []map[string]status.Entry{r.Bad, r.Good, r.Skipped} {
		for n := range set {
			width = max(width, len(n))
		}
	}
	nameCol := lipgloss.NewStyle().Width(width + 2)
	statusCol := lipgloss.NewStyle().Width(len("parent_error") + 2)
	attemptsCol := lipgloss.NewStyle().Width(len("ATTEMPTS") + 2)

	row := func(name, st, attempts, detail string, style lipgloss.Style) string {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			nameCol.Render(name),
			style.Inherit(statusCol).Render(st),
			attemptsCol.Render(attempts),
			detail,
		)
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("Run %s", r.RunID)),
		titleStyle.Render(row("IMAGE", "STATUS", "ATTEMPTS", "DETAIL", lipgloss.NewStyle())),
	}
	for _, set := range []map[string]status.Entry{r.Bad, r.Skipped, r.Good} {
		for _, name := range sortedNames(set) {
			e := set[name]
			lines = append(lines, row(name, e.Status.String(), strconv.Itoa(e.Attempts), e.Detail, statusStyle(e.Status)))
		}
	}

	lines = append(lines, "", dimStyle.Render(fmt.Sprintf(
		"built %d, skipped %d, failed %d, unmatched %d",
		len(r.Good), len(r.Skipped), len(r.Bad), len(r.Unmatched))))

	if len(r.Push) > 0 {
		failed := r.PushFailures()
		lines = append(lines, dimStyle.Render(fmt.Sprintf("pushed %d, push failed %d", len(r.Push)-len(failed), len(failed))))
		for _, name := range failed {
			lines = append(lines, statusStyle(image.Error).Render("push failed: "+name+": "+r.Push[name].Detail))
		}
	}

	_, err := fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	return err
}

func statusStyle(s image.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(statusColors[s])
}
