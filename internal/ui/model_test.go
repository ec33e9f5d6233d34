// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and panel rendering
package ui

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // VolumeControl is optional for testing

	// Check initial state
	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}

	if model.muted {
		t.Error("expected muted to be false initially")
	}

	if model.state != "starting" {
		t.Errorf("expected state 'starting', got %q", model.state)
	}

	if !math.IsInf(model.levelDB, -1) {
		t.Errorf("expected initial level -Inf, got %f", model.levelDB)
	}
}

func TestStatusMsgStreamInfo(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		State:  "playing",
		Stream: "239.69.83.134:5004",
		Format: "L24/48000/8 @1.0ms",
	})

	if model.state != "playing" {
		t.Errorf("expected state 'playing', got %q", model.state)
	}

	if model.stream != "239.69.83.134:5004" {
		t.Errorf("expected stream '239.69.83.134:5004', got %q", model.stream)
	}

	if model.format != "L24/48000/8 @1.0ms" {
		t.Errorf("expected format to be applied, got %q", model.format)
	}
}

func TestStatusMsgLevel(t *testing.T) {
	model := NewModel(nil)

	db := -23.5
	model.applyStatus(StatusMsg{LevelDB: &db})

	if model.levelDB != -23.5 {
		t.Errorf("expected level -23.5, got %f", model.levelDB)
	}

	if len(model.history) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(model.history))
	}
}

func TestLevelHistoryBounded(t *testing.T) {
	model := NewModel(nil)

	for i := 0; i < historyDepth+5; i++ {
		db := float64(-i)
		model.applyStatus(StatusMsg{LevelDB: &db})
	}

	if len(model.history) != historyDepth {
		t.Errorf("expected history capped at %d, got %d", historyDepth, len(model.history))
	}
}

func TestPeakHold(t *testing.T) {
	model := NewModel(nil)

	for _, db := range []float64{-40, -12.5, -30} {
		v := db
		model.applyStatus(StatusMsg{LevelDB: &v})
	}

	if hold := model.peakHold(); hold != -12.5 {
		t.Errorf("expected peak hold -12.5, got %f", hold)
	}
}

func TestPeakHoldEmpty(t *testing.T) {
	model := NewModel(nil)

	if hold := model.peakHold(); !math.IsInf(hold, -1) {
		t.Errorf("expected -Inf hold with no history, got %f", hold)
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Stats: &Stats{
		Packets:    1000,
		PacketRate: 998.5,
		Lost:       3,
		Reordered:  1,
		BufferedMs: 45.0,
	}})

	if model.packets != 1000 {
		t.Errorf("expected packets 1000, got %d", model.packets)
	}

	if model.lost != 3 {
		t.Errorf("expected lost 3, got %d", model.lost)
	}

	if model.bufferedMs != 45.0 {
		t.Errorf("expected buffered 45.0, got %f", model.bufferedMs)
	}
}

func TestStatusMsgStatsZeroValues(t *testing.T) {
	model := NewModel(nil)

	// Non-zero first, then a snapshot with zeros; the pointer marks
	// the whole snapshot as intentional, so zeros must land.
	model.applyStatus(StatusMsg{Stats: &Stats{Packets: 100, Lost: 5}})
	model.applyStatus(StatusMsg{Stats: &Stats{Packets: 0, Lost: 0}})

	if model.packets != 0 {
		t.Errorf("expected packets reset to 0, got %d", model.packets)
	}

	if model.lost != 0 {
		t.Errorf("expected lost reset to 0, got %d", model.lost)
	}
}

func TestStatusMsgVolume(t *testing.T) {
	model := NewModel(nil)

	vol := 75
	model.applyStatus(StatusMsg{Volume: &vol})

	if model.volume != 75 {
		t.Errorf("expected volume 75, got %d", model.volume)
	}

	// Zero through the pointer is a real request, unlike an absent field.
	zero := 0
	model.applyStatus(StatusMsg{Volume: &zero})

	if model.volume != 0 {
		t.Errorf("expected volume 0, got %d", model.volume)
	}
}

func TestStatusMsgVolumeClamped(t *testing.T) {
	model := NewModel(nil)

	high := 150
	model.applyStatus(StatusMsg{Volume: &high})
	if model.volume != 100 {
		t.Errorf("expected volume clamped to 100, got %d", model.volume)
	}

	low := -5
	model.applyStatus(StatusMsg{Volume: &low})
	if model.volume != 0 {
		t.Errorf("expected volume clamped to 0, got %d", model.volume)
	}
}

func TestStatusMsgMuted(t *testing.T) {
	model := NewModel(nil)

	muted := true
	model.applyStatus(StatusMsg{Muted: &muted})

	if !model.muted {
		t.Error("expected muted to be true after status update")
	}
}

func TestPartialUpdateKeepsPrevious(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{State: "playing", Stream: "239.1.2.3:5004"})

	db := -10.0
	model.applyStatus(StatusMsg{LevelDB: &db})

	if model.stream != "239.1.2.3:5004" {
		t.Error("previous stream value was lost")
	}

	if model.state != "playing" {
		t.Error("previous state value was lost")
	}
}

func TestHandleKeyQuit(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	_, cmd := model.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command for 'q'")
	}

	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected QuitMsg on the quit channel")
	}
}

func TestHandleKeyCtrlC(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	_, cmd := model.handleKey(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("expected quit command for ctrl+c")
	}

	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected QuitMsg on the quit channel")
	}
}

func TestHandleKeyVolumeDown(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	updated, _ := model.handleKey(tea.KeyMsg{Type: tea.KeyDown})

	m := updated.(Model)
	if m.volume != 95 {
		t.Errorf("expected volume 95 after one step down, got %d", m.volume)
	}

	select {
	case change := <-ctrl.Changes:
		if change.Volume != 95 {
			t.Errorf("expected change volume 95, got %d", change.Volume)
		}
	default:
		t.Error("expected a volume change message")
	}
}

func TestHandleKeyVolumeUpClamped(t *testing.T) {
	model := NewModel(nil)

	updated, _ := model.handleKey(tea.KeyMsg{Type: tea.KeyUp})

	if m := updated.(Model); m.volume != 100 {
		t.Errorf("expected volume to stay at 100, got %d", m.volume)
	}
}

func TestHandleKeyMute(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	updated, _ := model.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})

	if m := updated.(Model); !m.muted {
		t.Error("expected muted after 'm'")
	}

	select {
	case change := <-ctrl.Changes:
		if !change.Muted {
			t.Error("expected change message with muted true")
		}
	default:
		t.Error("expected a volume change message")
	}
}

func TestMeterBar(t *testing.T) {
	tests := []struct {
		db     float64
		filled int
	}{
		{math.Inf(-1), 0},
		{-75, 0},
		{-60, 0},
		{-30, 20},
		{-15, 30},
		{-6, 36},
		{0, 40},
		{3, 40}, // clipping stays pegged at full scale
	}

	for _, tt := range tests {
		bar := meterBar(tt.db, meterCells)

		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("meterBar(%f) filled %d cells, expected %d", tt.db, got, tt.filled)
		}

		if w := runewidth.StringWidth(bar); w != meterCells {
			t.Errorf("meterBar(%f) width %d, expected %d", tt.db, w, meterCells)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value    int
		filled   int
	}{
		{0, 0},
		{33, 3},
		{50, 5},
		{100, 10},
	}

	for _, tt := range tests {
		bar := renderBar(tt.value, 100, 10)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderBar(%d) filled %d cells, expected %d", tt.value, got, tt.filled)
		}
	}
}

func TestFormatDB(t *testing.T) {
	if got := formatDB(math.Inf(-1)); got != "silent" {
		t.Errorf("formatDB(-Inf) = %q, expected 'silent'", got)
	}

	if got := formatDB(-23.5); got != "-23.5 dBFS" {
		t.Errorf("formatDB(-23.5) = %q", got)
	}

	if got := formatDB(0); got != "0.0 dBFS" {
		t.Errorf("formatDB(0) = %q", got)
	}
}

func TestViewRowsAligned(t *testing.T) {
	model := NewModel(nil)
	model.width = 80
	model.height = 24

	db := -18.2
	model.applyStatus(StatusMsg{
		State:   "playing",
		Stream:  "239.69.83.134:5004",
		Format:  "L24/48000/8 @1.0ms",
		LevelDB: &db,
		Stats:   &Stats{Packets: 12345, PacketRate: 1000, BufferedMs: 45},
	})

	for _, line := range strings.Split(model.View(), "\n") {
		if line == "" {
			continue
		}
		if w := runewidth.StringWidth(line); w != innerWidth+4 {
			t.Errorf("row width %d, expected %d: %q", w, innerWidth+4, line)
		}
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abc", 3, "abc"},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}
