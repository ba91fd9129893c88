// Package stream renders the merged chat timeline. It adapts the merge
// log snapshot to the scroll window's record sequence, filters out
// hidden sources, and wraps styled message lines to the viewport width.
package stream

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/window"
)

// timestampCells is the rendered width of the "15:04:05 " prefix.
const timestampCells = 9

// wholeLog is a scroll distance larger than any realistic line total,
// used to jump straight to the oldest record.
const wholeLog = 1 << 30

var (
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	textStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	symbolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	emptyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Author name styles by channel role.
var roleStyles = map[chat.Role]lipgloss.Style{
	chat.RoleOwner:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
	chat.RoleModerator: lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true),
	chat.RoleMember:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	chat.RoleRegular:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
}

func roleStyle(r chat.Role) lipgloss.Style {
	if s, ok := roleStyles[r]; ok {
		return s
	}
	return roleStyles[chat.RoleRegular]
}

// sourcePalette gives each source a stable color without configuration.
var sourcePalette = []lipgloss.Color{"39", "170", "114", "214", "203", "81", "183", "229"}

// SourceColor returns the palette style for a source id, stable across
// renders so a source keeps its color for the whole session.
func SourceColor(id string) lipgloss.Style {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return lipgloss.NewStyle().Foreground(sourcePalette[h%uint32(len(sourcePalette))]).Bold(true)
}

// Model is the merged chat timeline view. It owns the scroll window and
// the hidden-source filter; the message slice itself is the merge log's
// snapshot, replaced wholesale on every refresh.
type Model struct {
	width  int
	height int

	win *window.Window

	msgs    []chat.Message
	visible []int // indices into msgs that survive the source filter
	hidden  map[string]bool

	logVersion uint64
	filterRev  uint64
}

// New creates a timeline view for the given dimensions. A non-positive
// followDistance takes the window default.
func New(width, height, followDistance int) *Model {
	return &Model{
		width:  width,
		height: height,
		win:    window.New(width, height, followDistance),
		hidden: make(map[string]bool),
	}
}

// version combines the log's structural version with the local filter
// revision. Both only grow, so any change to either invalidates the
// window's height cache.
func (m *Model) version() uint64 {
	return m.logVersion + m.filterRev
}

// seq adapts the filtered message list to the window's record sequence.
type seq struct{ m *Model }

func (s seq) Len() int { return len(s.m.visible) }

func (s seq) TextLen(i int) int {
	return displayLen(s.m.msgs[s.m.visible[i]])
}

// displayLen mirrors the rendered line layout so height estimates match
// what flowSpans produces: "15:04:05 source author: text".
func displayLen(msg chat.Message) int {
	return timestampCells +
		utf8.RuneCountInString(msg.SourceID) + 1 +
		utf8.RuneCountInString(msg.Author.Name) + 2 +
		utf8.RuneCountInString(msg.Text)
}

// SetMessages replaces the timeline with a fresh merge log snapshot.
// version is the log's structural version at the time of the snapshot.
func (m *Model) SetMessages(items []chat.Message, version uint64) {
	m.msgs = items
	m.logVersion = version
	m.rebuildVisible()
}

// ToggleSource flips the hidden state for a source and reports the new
// state. Hiding re-anchors a free window approximately: indices shift
// when records are filtered out, and the window clamps to the new range.
func (m *Model) ToggleSource(id string) bool {
	if m.hidden[id] {
		delete(m.hidden, id)
	} else {
		m.hidden[id] = true
	}
	m.filterRev++
	m.rebuildVisible()
	return m.hidden[id]
}

// IsHidden reports whether a source is filtered out of the timeline.
func (m *Model) IsHidden(id string) bool {
	return m.hidden[id]
}

func (m *Model) rebuildVisible() {
	m.visible = m.visible[:0]
	for i := range m.msgs {
		if !m.hidden[m.msgs[i].SourceID] {
			m.visible = append(m.visible, i)
		}
	}
}

// SetSize updates the viewport dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.win.Resize(width, height)
}

// Mode returns the window's current scroll discipline.
func (m *Model) Mode() window.Mode {
	return m.win.Mode()
}

// Visible returns the record range the window currently selects.
func (m *Model) Visible() window.Slice {
	return m.win.Visible(seq{m}, m.version())
}

// ScrollBy moves the viewport by the given number of estimated lines,
// negative toward older messages.
func (m *Model) ScrollBy(lines int) {
	m.win.ScrollBy(lines, seq{m}, m.version())
}

// PageUp scrolls one screen toward older messages, keeping a line of
// overlap.
func (m *Model) PageUp() {
	m.ScrollBy(-m.pageStep())
}

// PageDown scrolls one screen toward newer messages.
func (m *Model) PageDown() {
	m.ScrollBy(m.pageStep())
}

func (m *Model) pageStep() int {
	return max(1, m.height-1)
}

// ResumeFollow reattaches the viewport to the newest messages.
func (m *Model) ResumeFollow() {
	m.win.Resume()
}

// JumpTop scrolls to the oldest retained message. On a timeline that
// already fits on screen this is a no-op and the window stays following.
func (m *Model) JumpTop() {
	m.ScrollBy(-wholeLog)
}

// View renders the visible slice, clipped and padded to the viewport.
// While following, overflow is clipped from the top and short content is
// bottom-aligned so the newest message hugs the status bar.
func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if len(m.visible) == 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			emptyStyle.Render("waiting for messages"))
	}

	sl := m.win.Visible(seq{m}, m.version())
	lines := make([]string, 0, m.height)
	for i := sl.Start; i < sl.End; i++ {
		lines = append(lines, m.renderMessage(m.msgs[m.visible[i]])...)
	}

	if len(lines) > m.height {
		if m.win.Mode() == window.Following {
			lines = lines[len(lines)-m.height:]
		} else {
			lines = lines[:m.height]
		}
	}
	if pad := m.height - len(lines); pad > 0 {
		blanks := make([]string, pad)
		if m.win.Mode() == window.Following {
			lines = append(blanks, lines...)
		} else {
			lines = append(lines, blanks...)
		}
	}
	return strings.Join(lines, "\n")
}

// span is one styled run within a rendered line.
type span struct {
	text  string
	style lipgloss.Style
}

// renderMessage lays a message out as styled spans and wraps them to the
// viewport width. Always returns at least one line so the window's
// minimum-height estimate holds.
func (m *Model) renderMessage(msg chat.Message) []string {
	ts := msg.OccurredAt
	if ts.IsZero() {
		ts = msg.ReceivedAt
	}

	spans := make([]span, 0, 4)
	spans = append(spans, span{ts.Format("15:04:05") + " ", timestampStyle})
	spans = append(spans, span{msg.SourceID + " ", SourceColor(msg.SourceID)})
	spans = append(spans, span{msg.Author.Name + ": ", roleStyle(msg.Role)})
	for _, seg := range chat.Tokenize(msg.Text, msg.Symbols) {
		if seg.Kind == chat.SegmentSymbol {
			spans = append(spans, span{seg.Text, symbolStyle})
		} else {
			spans = append(spans, span{seg.Text, textStyle})
		}
	}

	lines := flowSpans(spans, m.width)
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// flowSpans wraps styled spans at exact rune boundaries so the produced
// line count equals ceil(total runes / width), the same arithmetic the
// window uses to estimate heights.
func flowSpans(spans []span, width int) []string {
	if width < 1 {
		width = 1
	}
	var (
		lines []string
		cur   strings.Builder
		used  int
	)
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		used = 0
	}
	for _, sp := range spans {
		runes := []rune(sp.text)
		for len(runes) > 0 {
			room := width - used
			if room == 0 {
				flush()
				room = width
			}
			take := min(room, len(runes))
			cur.WriteString(sp.style.Render(string(runes[:take])))
			used += take
			runes = runes[take:]
		}
	}
	if used > 0 {
		flush()
	}
	return lines
}
