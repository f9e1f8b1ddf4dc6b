package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wtsynth/internal/analysis"
	"wtsynth/internal/synth"
)

// Synth is the control surface the monitor drives. audio.Player implements it.
type Synth interface {
	NoteOnHeld(note int, velocity float32, hold time.Duration)
	AllNotesOff()
	SetParam(id synth.ParamID, value float32)
	GetParam(id synth.ParamID) float32
	ActiveVoices() int
}

const (
	baseNote    = 60 // C4 on the "a" key
	minOctave   = -4
	maxOctave   = 4
	barHeight   = 12
	volumeStep  = 0.05
	keyVelocity = 0.8
)

// Piano layout on the home row, one octave plus the next C.
var pianoKeys = map[string]int{
	"a": 0, "w": 1, "s": 2, "e": 3, "d": 4, "f": 5, "t": 6,
	"g": 7, "y": 8, "h": 9, "u": 10, "j": 11, "k": 12,
}

var barLevels = []rune(" ▁▂▃▄▅▆▇█")

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	peakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F25D94"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#353533")).
			Padding(0, 1)
)

type monitorKeys struct {
	Play       key.Binding
	OctaveDown key.Binding
	OctaveUp   key.Binding
	Wave       key.Binding
	VolDown    key.Binding
	VolUp      key.Binding
	Panic      key.Binding
	Quit       key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.OctaveDown, k.OctaveUp, k.Wave, k.VolDown, k.VolUp, k.Panic, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultMonitorKeys = monitorKeys{
	Play:       key.NewBinding(key.WithKeys("a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k"), key.WithHelp("a-k", "play")),
	OctaveDown: key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "octave -")),
	OctaveUp:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "octave +")),
	Wave:       key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "table")),
	VolDown:    key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "vol -")),
	VolUp:      key.NewBinding(key.WithKeys("=", "+"), key.WithHelp("=", "vol +")),
	Panic:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "all off")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

// MonitorModel is the Bubble Tea model of the live monitor: the keyboard
// plays notes and the spectrum is drawn as log-spaced bars.
type MonitorModel struct {
	synth    Synth
	spectrum analysis.SpectrumProvider
	interval time.Duration
	hold     time.Duration

	bands  []analysis.FrequencyBand
	levels []float32
	frame  []float32

	tables   []string
	octave   int
	lastNote int
	width    int
	keys     monitorKeys
	help     help.Model
	err      error
}

// MonitorOptions configures NewMonitorModel.
type MonitorOptions struct {
	Interval time.Duration // Redraw interval
	Hold     time.Duration // Sustain time of a key press
	Bands    int           // Number of spectrum bars
	Tables   []string      // Table names by ID, for the 1-9 keys
}

// NewMonitorModel creates the monitor. Bars span 30 Hz to the lower of
// 16 kHz and the highest bin.
func NewMonitorModel(s Synth, spectrum analysis.SpectrumProvider, opts MonitorOptions) MonitorModel {
	if opts.Bands <= 0 {
		opts.Bands = 32
	}
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	highHz := min(16000, spectrum.FrequencyForBin(spectrum.Bins()-1))
	bands := analysis.LogBands(opts.Bands, 30, highHz)

	return MonitorModel{
		synth:    s,
		spectrum: spectrum,
		interval: opts.Interval,
		hold:     opts.Hold,
		bands:    bands,
		tables:   opts.Tables,
		levels:   make([]float32, len(bands)),
		frame:    make([]float32, spectrum.Bins()),
		lastNote: -1,
		keys:     defaultMonitorKeys,
		help:     help.New(),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the redraw ticker.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles key presses and redraw ticks.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.synth.AllNotesOff()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Play):
			note := baseNote + 12*m.octave + pianoKeys[msg.String()]
			m.synth.NoteOnHeld(note, keyVelocity, m.hold)
			m.lastNote = note

		case key.Matches(msg, m.keys.OctaveDown):
			m.octave = max(minOctave, m.octave-1)

		case key.Matches(msg, m.keys.OctaveUp):
			m.octave = min(maxOctave, m.octave+1)

		case key.Matches(msg, m.keys.Wave):
			if id := int(msg.String()[0] - '1'); id < len(m.tables) {
				m.synth.SetParam(synth.Osc1Type, float32(id))
			}

		case key.Matches(msg, m.keys.VolDown):
			m.setVolume(m.synth.GetParam(synth.MasterVol) - volumeStep)

		case key.Matches(msg, m.keys.VolUp):
			m.setVolume(m.synth.GetParam(synth.MasterVol) + volumeStep)

		case key.Matches(msg, m.keys.Panic):
			m.synth.AllNotesOff()
		}
	}

	return m, nil
}

func (m MonitorModel) setVolume(v float32) {
	m.synth.SetParam(synth.MasterVol, min(1, max(0, v)))
}

// refresh reads the latest spectrum into the bar levels. levels is shared
// with copies of the model, which is fine since only Update writes it.
func (m *MonitorModel) refresh() {
	if err := m.spectrum.SpectrumInto(m.frame); err != nil {
		m.err = err
		return
	}
	m.err = analysis.BandLevels(m.frame, m.spectrum.FrequencyForBin, m.bands, m.levels)
}

// View renders the UI
func (m MonitorModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("wtsynth monitor"))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderBars())
	sb.WriteString("\n")
	sb.WriteString(m.renderAxis())
	sb.WriteString("\n\n")
	sb.WriteString(statusStyle.Render(m.status()))
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(peakStyle.Render(fmt.Sprintf("spectrum: %v", m.err)))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(m.keys))

	return sb.String()
}

func (m MonitorModel) status() string {
	id := int(m.synth.GetParam(synth.Osc1Type) + 0.5)
	wave := fmt.Sprintf("#%d", id)
	if id >= 0 && id < len(m.tables) {
		wave = m.tables[id]
	}
	note := "-"
	if m.lastNote >= 0 {
		note = noteName(m.lastNote)
	}
	return fmt.Sprintf("octave %+d  wave %s  vol %.2f  voices %d  last %s",
		m.octave, wave, m.synth.GetParam(synth.MasterVol), m.synth.ActiveVoices(), note)
}

// renderBars draws one column per band, barHeight rows high, with eighth
// block resolution on the top cell.
func (m MonitorModel) renderBars() string {
	var sb strings.Builder
	last := len(barLevels) - 1
	for row := barHeight - 1; row >= 0; row-- {
		var line strings.Builder
		for _, level := range m.levels {
			fill := float64(level)*barHeight - float64(row)
			switch {
			case fill >= 1:
				line.WriteRune(barLevels[last])
			case fill <= 0:
				line.WriteRune(barLevels[0])
			default:
				line.WriteRune(barLevels[int(fill*float64(last))])
			}
		}
		style := barStyle
		if row >= barHeight*3/4 {
			style = peakStyle
		}
		sb.WriteString(style.Render(line.String()))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m MonitorModel) renderAxis() string {
	if len(m.bands) == 0 {
		return ""
	}
	lo := formatHz(m.bands[0].LowHz)
	hi := formatHz(m.bands[len(m.bands)-1].HighHz)
	gap := len(m.bands) - len(lo) - len(hi)
	if gap < 1 {
		gap = 1
	}
	return infoStyle.Render(lo + strings.Repeat(" ", gap) + hi)
}

func formatHz(hz float64) string {
	if hz >= 1000 {
		return fmt.Sprintf("%.0fk", hz/1000)
	}
	return fmt.Sprintf("%.0f", hz)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// noteName returns the scientific pitch name of a MIDI note (60 = C4).
func noteName(note int) string {
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}

// RunMonitor runs the monitor until the user quits or ctx is done.
func RunMonitor(ctx context.Context, s Synth, spectrum analysis.SpectrumProvider, opts MonitorOptions) error {
	p := tea.NewProgram(
		NewMonitorModel(s, spectrum, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
