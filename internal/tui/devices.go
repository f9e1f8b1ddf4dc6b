package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wtsynth/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

// ScreenType is the picker page being shown.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// chrome is the height taken by the title and help lines.
const chrome = 4

var commonSampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the result of the device picker.
type Selection struct {
	DeviceID   int
	SampleRate float64
}

type pickerKeys struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Back  key.Binding
	Quit  key.Binding
}

func (k pickerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Back, k.Quit}
}

func (k pickerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultPickerKeys = pickerKeys{
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
	Back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back"), key.WithDisabled()),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// DeviceListModel picks an output device and then a sample rate for it.
// Devices without a stereo output are listed but cannot be chosen.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	activeScreen  ScreenType
	fetch         func() ([]audio.Device, error)
	err           error

	availableSampleRates []float64
	sampleRateIndex      int
	selectedSampleRate   float64
	selection            *Selection

	viewport viewport.Model
	ready    bool
	keys     pickerKeys
	help     help.Model
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a picker over fetch. A nil fetch lists the
// host's PortAudio devices.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	if fetch == nil {
		fetch = audio.HostDevices
	}
	return DeviceListModel{
		fetch: fetch,
		keys:  defaultPickerKeys,
		help:  help.New(),
	}
}

// Init loads the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		m.help.Width = msg.Width

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = max(0, slices.IndexFunc(m.devices, audio.Device.IsOutput))

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		var done bool
		if m.activeScreen == ConfigScreen {
			m, done = m.updateConfig(msg)
		} else {
			m = m.updateList(msg)
		}
		if done {
			return m, tea.Quit
		}
	}

	m.keys.Back.SetEnabled(m.activeScreen == ConfigScreen)
	m.viewport.SetContent(m.renderScreen())

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DeviceListModel) updateList(msg tea.KeyMsg) DeviceListModel {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.selectedIndex = max(0, m.selectedIndex-1)
	case key.Matches(msg, m.keys.Down):
		m.selectedIndex = max(0, min(len(m.devices)-1, m.selectedIndex+1))
	case key.Matches(msg, m.keys.Enter):
		if len(m.devices) == 0 || !m.devices[m.selectedIndex].IsOutput() {
			break
		}
		d := m.devices[m.selectedIndex]
		m.activeScreen = ConfigScreen
		m.availableSampleRates = sampleRatesFor(d)
		m.sampleRateIndex = max(0, slices.Index(m.availableSampleRates, d.DefaultSampleRate))
		m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
	}
	return m
}

// updateConfig reports done once a rate is confirmed.
func (m DeviceListModel) updateConfig(msg tea.KeyMsg) (DeviceListModel, bool) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.activeScreen = ListScreen
		return m, false
	case key.Matches(msg, m.keys.Up):
		m.sampleRateIndex = max(0, m.sampleRateIndex-1)
	case key.Matches(msg, m.keys.Down):
		m.sampleRateIndex = min(len(m.availableSampleRates)-1, m.sampleRateIndex+1)
	case key.Matches(msg, m.keys.Enter):
		m.selection = &Selection{
			DeviceID:   m.devices[m.selectedIndex].ID,
			SampleRate: m.selectedSampleRate,
		}
		return m, true
	}
	m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
	return m, false
}

// Selection returns the confirmed choice, or false if the user quit first.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// sampleRatesFor returns the common rates plus the device default, sorted.
func sampleRatesFor(d audio.Device) []float64 {
	rates := slices.Clone(commonSampleRates)
	if d.DefaultSampleRate > 0 && !slices.Contains(rates, d.DefaultSampleRate) {
		rates = append(rates, d.DefaultSampleRate)
		slices.Sort(rates)
	}
	return rates
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	title := "Output Devices"
	if m.activeScreen == ConfigScreen {
		title = "Sample Rate"
	}
	return titleStyle.Render(title) + "\n\n" + m.viewport.View() + "\n" + m.help.View(m.keys)
}

func (m DeviceListModel) renderScreen() string {
	if m.activeScreen == ConfigScreen {
		return m.renderDeviceConfig()
	}
	return m.renderDevices()
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		row := fmt.Sprintf("[%d] %s  %s\n    %d in / %d out, %.0f Hz, latency %s-%s\n",
			d.ID, d.Name, d.HostAPI,
			d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate,
			d.LowLatency, d.HighLatency)
		switch {
		case i == m.selectedIndex:
			row = highlightStyle.Render(row)
		case !d.IsOutput():
			row = dimStyle.Render(row)
		}
		sb.WriteString(row)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", m.devices[m.selectedIndex].Name)
	for i, rate := range m.availableSampleRates {
		line := fmt.Sprintf("    %.0f Hz", rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(fmt.Sprintf("  ▶ %.0f Hz", rate))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the picker. PortAudio must be initialized. ok is false
// when the user quit without choosing.
func PickDevice() (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewDeviceListModel(nil), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	m := final.(DeviceListModel)
	if m.err != nil {
		return Selection{}, false, m.err
	}
	sel, ok = m.Selection()
	return sel, ok, nil
}
