package tui

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"wtsynth/internal/audio"
)

var testDevices = []audio.Device{
	{ID: 0, Name: "Built-in Microphone", HostAPI: "Core Audio", MaxInputChannels: 2, DefaultSampleRate: 48000},
	{ID: 1, Name: "Built-in Output", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 44100,
		LowLatency: 5 * time.Millisecond, HighLatency: 20 * time.Millisecond},
	{ID: 2, Name: "Interface", HostAPI: "Core Audio", MaxOutputChannels: 8, DefaultSampleRate: 192000},
}

func send(m DeviceListModel, msgs ...tea.Msg) DeviceListModel {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(DeviceListModel)
	}
	return m
}

func keyMsg(k string) tea.Msg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func loadedPicker(t *testing.T) DeviceListModel {
	t.Helper()
	m := NewDeviceListModel(func() ([]audio.Device, error) {
		return testDevices, nil
	})
	msg := m.Init()()
	return send(m, tea.WindowSizeMsg{Width: 100, Height: 40}, msg)
}

func TestDevicePickerStartsOnFirstOutput(t *testing.T) {
	m := loadedPicker(t)

	if m.selectedIndex != 1 {
		t.Errorf("selectedIndex = %d, want 1", m.selectedIndex)
	}
	view := m.View()
	for _, want := range []string{"Output Devices", "Built-in Output", "Core Audio"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDevicePickerSelectsRate(t *testing.T) {
	m := loadedPicker(t)

	m = send(m, keyMsg("enter"))
	if m.activeScreen != ConfigScreen {
		t.Fatal("enter did not open the config screen")
	}
	if m.selectedSampleRate != 44100 {
		t.Errorf("selectedSampleRate = %v, want device default 44100", m.selectedSampleRate)
	}

	m = send(m, keyMsg("down"), keyMsg("enter"))
	sel, ok := m.Selection()
	if !ok {
		t.Fatal("no selection after confirming")
	}
	if sel.DeviceID != 1 || sel.SampleRate != 48000 {
		t.Errorf("selection = %+v, want device 1 at 48000", sel)
	}
}

func TestDevicePickerSkipsInputOnlyDevice(t *testing.T) {
	m := loadedPicker(t)

	m = send(m, keyMsg("up"), keyMsg("enter"))
	if m.activeScreen != ListScreen {
		t.Error("input-only device opened the config screen")
	}
}

func TestDevicePickerEscReturnsToList(t *testing.T) {
	m := loadedPicker(t)

	m = send(m, keyMsg("enter"), keyMsg("esc"))
	if m.activeScreen != ListScreen {
		t.Error("esc did not return to the list")
	}
	if _, ok := m.Selection(); ok {
		t.Error("selection set without confirming")
	}
}

func TestDevicePickerFetchError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) {
		return nil, errors.New("no host")
	})
	m = send(m, tea.WindowSizeMsg{Width: 80, Height: 24}, m.Init()())

	if !strings.Contains(m.View(), "no host") {
		t.Errorf("view = %q, want the fetch error", m.View())
	}
}

func TestSampleRatesFor(t *testing.T) {
	got := sampleRatesFor(testDevices[2])
	want := []float64{44100, 48000, 88200, 96000, 192000}
	if !slices.Equal(got, want) {
		t.Errorf("sampleRatesFor = %v, want %v", got, want)
	}

	got = sampleRatesFor(testDevices[1])
	if !slices.Equal(got, commonSampleRates) {
		t.Errorf("sampleRatesFor = %v, want %v", got, commonSampleRates)
	}
}

func TestDevicePickerHelpFollowsScreen(t *testing.T) {
	m := loadedPicker(t)
	if strings.Contains(m.View(), "back") {
		t.Error("list screen offers esc back")
	}

	m = send(m, keyMsg("enter"))
	if !strings.Contains(m.View(), "back") {
		t.Error("config screen help is missing esc back")
	}
}
