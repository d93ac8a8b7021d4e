package plan

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"

	"github.com/thomasbergersen/execplan/pkg/graphview"
)

// renderSchedule builds the human-readable schedule table: one column
// per logic stream, one row per node position (row i holds the i-th
// node of each stream). Wait and notify commands are not shown in the
// table. Node-name shortening is a diagnostic convention only, per
// spec.md §4.2. Grounded on cmd/gomlx_checkpoints/tables.go's
// newPlainTableWithReds construction.
func renderSchedule(p *Plan) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	maxRows := 0
	for _, ls := range p.LogicStreams {
		if len(ls.Nodes) > maxRows {
			maxRows = len(ls.Nodes)
		}
	}

	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			return cellStyle
		})

	headers := make([]string, len(p.LogicStreams))
	for i := range p.LogicStreams {
		headers[i] = fmt.Sprintf("stream %d", i)
	}
	t.Headers(headers...)

	for row := 0; row < maxRows; row++ {
		cells := make([]string, len(p.LogicStreams))
		for col, ls := range p.LogicStreams {
			if row < len(ls.Nodes) {
				cells[col] = shortenNodeName(ls.Nodes[row])
			} else {
				cells[col] = ""
			}
		}
		t.Row(cells...)
	}

	return t.Render()
}

func shortenNodeName(n graphview.NodeIndex) string {
	name := fmt.Sprintf("node_%d", n)
	if len(name) > 10 {
		return name[:7] + "..."
	}
	return name
}
