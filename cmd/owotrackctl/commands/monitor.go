package commands

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const monitorPollInterval = time.Second

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch connected devices live",
		Long:  "Polls the owotrackd introspection API and renders a live-updating device table until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := tea.NewProgram(newMonitorModel()).Run()
			return err
		},
	}
}

type devicesMsg struct {
	devices []deviceView
	err     error
}

type monitorModel struct {
	table table.Model
	err   error
}

func newMonitorModel() monitorModel {
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "HARDWARE-ID", Width: 18},
		{Title: "NAME", Width: 20},
		{Title: "PROTOCOL", Width: 14},
		{Title: "TRACKERS", Width: 9},
		{Title: "STATUS", Width: 13},
		{Title: "LAST-PACKET", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)

	return monitorModel{table: t}
}

func (m monitorModel) Init() tea.Cmd {
	return pollDevices()
}

func pollDevices() tea.Cmd {
	return func() tea.Msg {
		devices, err := fetchDevices()
		return devicesMsg{devices: devices, err: err}
	}
}

func tickThenPoll() tea.Cmd {
	return tea.Tick(monitorPollInterval, func(time.Time) tea.Msg {
		return pollDevices()()
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case devicesMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.table.SetRows(devicesToRows(msg.devices))
		}
		return m, tickThenPoll()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("owotrackctl monitor: %s\n\npress q to quit\n", m.err)
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Render(m.table.View()) + "\n\npress q to quit\n"
}

func devicesToRows(devices []deviceView) []table.Row {
	rows := make([]table.Row, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", d.ConnectionIndex),
			d.HardwareID,
			deviceLabel(d),
			d.Protocol,
			fmt.Sprintf("%d", d.TrackerCount),
			statusLabel(d.TimedOut),
			fmt.Sprintf("%dms", d.LastPacketAgeMs),
		})
	}
	return rows
}
