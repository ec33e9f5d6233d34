// ABOUTME: Bubbletea model for the playback panel
// ABOUTME: Renders the peak level bar, buffer depth and packet statistics
package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

const (
	// meterCells is the width of the peak bar.
	meterCells = 40

	// meterFloorDB is the level mapped to an empty bar; 0 dBFS fills it.
	meterFloorDB = -60.0

	// historyDepth bounds how many level reports the peak-hold looks at.
	historyDepth = 10

	// innerWidth is the usable width between the panel borders.
	innerWidth = 54
)

// Model represents the TUI state
type Model struct {
	// Stream
	stream string
	format string
	state  string

	// Level
	levelDB float64
	history []float64

	// Stats
	packets    int64
	packetRate float64
	lost       int64
	reordered  int64
	bufferedMs float64

	// Playback
	volume int
	muted  bool

	volumeCtrl *VolumeControl

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderMeter()
	s += m.renderStats()
	s += m.renderControls()
	s += m.renderHelp()

	return s
}

// renderHeader renders the stream identity and playback state
func (m Model) renderHeader() string {
	stream := m.stream
	if stream == "" {
		stream = "(no stream)"
	}

	s := top()
	s += row(fmt.Sprintf("Stream: %s", truncate(stream, innerWidth-8)))
	if m.format != "" {
		s += row(fmt.Sprintf("Format: %s", truncate(m.format, innerWidth-8)))
	}
	s += row(fmt.Sprintf("State:  %s", m.state))
	s += rule()
	return s
}

// renderMeter renders the peak bar and its numeric readout
func (m Model) renderMeter() string {
	s := row(fmt.Sprintf("Level: [%s]", meterBar(m.levelDB, meterCells)))
	s += row(fmt.Sprintf("       %s  (hold %s)", formatDB(m.levelDB), formatDB(m.peakHold())))
	return s
}

// renderStats renders receiver and buffer statistics
func (m Model) renderStats() string {
	s := row(fmt.Sprintf("Buffer: %.1f ms   Rate: %.0f pkt/s", m.bufferedMs, m.packetRate))
	s += row(fmt.Sprintf("Packets: %d   Lost: %d   Reordered: %d", m.packets, m.lost, m.reordered))
	s += rule()
	return s
}

// renderControls renders volume and mute state
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = "  [muted]"
	}

	volumeBar := renderBar(m.volume, 100, 10)
	return row(fmt.Sprintf("Volume: [%s] %d%%%s", volumeBar, m.volume, muteIcon))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return row("↑/↓:Volume  m:Mute  q:Quit") + bottom()
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.signalQuit()
		return m, tea.Quit
	case "up":
		m.volume += 5
		if m.volume > 100 {
			m.volume = 100
		}
		m.signalVolume()
	case "down":
		m.volume -= 5
		if m.volume < 0 {
			m.volume = 0
		}
		m.signalVolume()
	case "m":
		m.muted = !m.muted
		m.signalVolume()
	}

	return m, nil
}

// signalVolume pushes the current volume state toward the session.
// The send never blocks; a stalled consumer loses intermediate steps.
func (m Model) signalVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// signalQuit tells the owner the user wants out.
func (m Model) signalQuit() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Quit <- QuitMsg{}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Stream != "" {
		m.stream = msg.Stream
	}
	if msg.Format != "" {
		m.format = msg.Format
	}
	if msg.LevelDB != nil {
		m.levelDB = *msg.LevelDB
		m.history = append(m.history, *msg.LevelDB)
		if len(m.history) > historyDepth {
			m.history = m.history[len(m.history)-historyDepth:]
		}
	}
	if msg.Stats != nil {
		m.packets = msg.Stats.Packets
		m.packetRate = msg.Stats.PacketRate
		m.lost = msg.Stats.Lost
		m.reordered = msg.Stats.Reordered
		m.bufferedMs = msg.Stats.BufferedMs
	}
	if msg.Volume != nil {
		v := *msg.Volume
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		m.volume = v
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
}

// peakHold returns the loudest level across the recent history.
func (m Model) peakHold() float64 {
	hold := math.Inf(-1)
	for _, db := range m.history {
		if db > hold {
			hold = db
		}
	}
	return hold
}

// StatusMsg updates TUI state. Nil and empty fields leave the current
// value in place so callbacks can send partial updates.
type StatusMsg struct {
	State   string
	Stream  string
	Format  string
	LevelDB *float64
	Stats   *Stats
	Volume  *int
	Muted   *bool
}

// Stats is the receiver and buffer snapshot rendered in the stats rows.
type Stats struct {
	Packets    int64
	PacketRate float64
	Lost       int64
	Reordered  int64
	BufferedMs float64
}

// Utility functions

// meterBar maps a peak level onto filled cells across the
// meterFloorDB..0 dBFS range. Silence leaves the bar empty.
func meterBar(db float64, cells int) string {
	filled := 0
	if !math.IsInf(db, -1) {
		frac := (db - meterFloorDB) / -meterFloorDB
		if frac > 1 {
			frac = 1
		}
		if frac > 0 {
			filled = int(frac * float64(cells))
		}
	}

	var b strings.Builder
	for i := 0; i < cells; i++ {
		if i < filled {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	return b.String()
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

// formatDB renders a level for display; silent windows read as such
// instead of printing an infinity.
func formatDB(db float64) string {
	if math.IsInf(db, -1) {
		return "silent"
	}
	return fmt.Sprintf("%.1f dBFS", db)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

// Panel row builders. Content is padded by display width, not byte
// count, so bar glyphs keep the borders aligned.

func row(content string) string {
	pad := innerWidth - runewidth.StringWidth(content)
	if pad < 0 {
		pad = 0
	}
	return "│ " + content + strings.Repeat(" ", pad) + " │\n"
}

func rule() string {
	return "├" + strings.Repeat("─", innerWidth+2) + "┤\n"
}

func top() string {
	title := "─ sdplay "
	return "┌" + title + strings.Repeat("─", innerWidth+2-runewidth.StringWidth(title)) + "┐\n"
}

func bottom() string {
	return "└" + strings.Repeat("─", innerWidth+2) + "┘\n"
}
