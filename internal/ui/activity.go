package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/kiosk/internal/logtail"
)

// activityChrome is the number of rows used by the header, command bar and
// notice line.
const activityChrome = 4

func (m Model) handleActivityKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.activityFollow = !m.activityFollow
		if m.activityFollow {
			m.activityView.GotoBottom()
			return m, m.loadActivityCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.activityFollow = false
		m.activityView.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.activityView.ScrollDown(1)
	case key.Matches(msg, m.keys.Top):
		m.activityFollow = false
		m.activityView.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.activityView.GotoBottom()
	default:
		var cmd tea.Cmd
		m.activityView, cmd = m.activityView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resizeActivity() {
	height := m.height - activityChrome
	if height < 3 {
		height = 3
	}
	if m.activityView.Width == 0 && m.activityView.Height == 0 {
		m.activityView = viewport.New(m.width, height)
	} else {
		m.activityView.Width = m.width
		m.activityView.Height = height
	}
	m.renderActivity()
}

// renderActivity rebuilds the viewport content from the parsed records.
func (m *Model) renderActivity() {
	if m.activityView.Width == 0 {
		return
	}
	styles := m.theme.Styles()
	lines := make([]string, 0, len(m.activity))
	for _, rec := range m.activity {
		lines = append(lines, formatRecord(rec, styles))
	}
	m.activityView.SetContent(strings.Join(lines, "\n"))
	if m.activityFollow {
		m.activityView.GotoBottom()
	}
}

func formatRecord(rec logtail.Record, styles Styles) string {
	if rec.Level == "" {
		return styles.MutedText.Render(rec.Raw)
	}

	var b strings.Builder
	if !rec.Time.IsZero() {
		b.WriteString(styles.FaintText.Render(rec.Time.Format("15:04:05")))
		b.WriteString(" ")
	}
	level := strings.ToUpper(rec.Level)
	switch level {
	case "ERROR":
		b.WriteString(styles.DangerText.Render("ERR"))
	case "WARN":
		b.WriteString(styles.WarningText.Render("WRN"))
	case "DEBUG":
		b.WriteString(styles.FaintText.Render("DBG"))
	default:
		b.WriteString(styles.InfoText.Render("INF"))
	}
	b.WriteString(" ")
	if component, ok := rec.Attr("component"); ok && component != "" {
		b.WriteString(styles.AccentText.Render(component))
		b.WriteString(" ")
	}
	b.WriteString(styles.Text.Render(rec.Message))
	for _, attr := range rec.Attrs {
		if attr.Key == "component" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(attr.Key + "="))
		b.WriteString(styles.MutedText.Render(attr.Value))
	}
	return b.String()
}

func (m Model) renderActivityView() string {
	styles := m.theme.Styles()
	if m.activityErr != nil {
		return styles.DangerText.Render("Could not read log: ") + styles.MutedText.Render(m.activityErr.Error())
	}
	if len(m.activity) == 0 {
		return styles.MutedText.Render("No activity yet.")
	}
	return m.activityView.View()
}
