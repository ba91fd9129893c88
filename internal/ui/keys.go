package ui

import "github.com/charmbracelet/bubbles/key"

// keys is the application keymap. Digits 1-9 are not bound here: they
// toggle source visibility by position in the configured source order
// and are matched directly in handleKey.
var keys = struct {
	ScrollUp   key.Binding
	ScrollDown key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Follow     key.Binding
	Top        key.Binding
	Debug      key.Binding
	Pause      key.Binding
	Restart    key.Binding
	Quit       key.Binding
}{
	ScrollUp:   key.NewBinding(key.WithKeys("k", "up")),
	ScrollDown: key.NewBinding(key.WithKeys("j", "down")),
	PageUp:     key.NewBinding(key.WithKeys("b", "pgup")),
	PageDown:   key.NewBinding(key.WithKeys("f", "pgdown")),
	Follow:     key.NewBinding(key.WithKeys("g", "G", "end")),
	Top:        key.NewBinding(key.WithKeys("home")),
	Debug:      key.NewBinding(key.WithKeys("d")),
	Pause:      key.NewBinding(key.WithKeys("p")),
	Restart:    key.NewBinding(key.WithKeys("r")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c")),
}
