// inspect.go is a small bubbletea/lipgloss hex-dump viewer for a flash
// region already pulled off the device, modeled on hejops-gone's cpu.Debug
// page-table TUI: a model holding a byte window and a cursor, "j"/"k" to
// scroll one 16-byte row at a time, "q" to quit.
package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const bytesPerRow = 16

type inspectModel struct {
	data    []byte
	base    uint32
	page    int // index of the first visible row
	current int // highlighted byte offset within data
}

func (m inspectModel) Init() tea.Cmd { return nil }

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.page+1 < m.rowCount()/bytesPerRow {
			m.page++
		}
	case "k", "up":
		if m.page > 0 {
			m.page--
		}
	}
	return m, nil
}

func (m inspectModel) rowCount() int {
	rows := len(m.data) / bytesPerRow
	if len(m.data)%bytesPerRow != 0 {
		rows++
	}
	return rows * bytesPerRow
}

func (m inspectModel) renderRow(rowStart int) string {
	addr := m.base + uint32(rowStart)
	line := fmt.Sprintf("%06x | ", addr)
	for i := 0; i < bytesPerRow; i++ {
		idx := rowStart + i
		if idx >= len(m.data) {
			line += "   "
			continue
		}
		line += fmt.Sprintf("%02x ", m.data[idx])
	}
	return line
}

func (m inspectModel) View() string {
	var rows []string
	visibleRows := 16
	start := m.page * bytesPerRow
	for r := 0; r < visibleRows; r++ {
		rowStart := start + r*bytesPerRow
		if rowStart >= len(m.data) {
			break
		}
		rows = append(rows, m.renderRow(rowStart))
	}
	header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("flash @ %#06x, %d bytes (j/k to scroll, q to quit)", m.base, len(m.data)))
	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(rows, "\n"))
}

// runInspect opens the hex-dump TUI over data read from addr.
func runInspect(addr uint32, data []byte) error {
	_, err := tea.NewProgram(inspectModel{data: data, base: addr}).Run()
	return err
}
