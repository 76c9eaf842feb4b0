package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fahmaliyi/dotp/otp"
	"github.com/fahmaliyi/dotp/vault"
)

type screen int

const (
	screenList screen = iota
	screenSearch
	screenAdd
	screenConfirmDelete
)

type tickMsg time.Time

var (
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("230"))
	codeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	vault       *vault.Vault
	gen         *otp.Generator
	copyFn      func(string) error
	closeOnCopy bool

	screen   screen
	entries  []vault.Entry
	cursor   int
	search   textinput.Model
	form     []textinput.Model
	progress progress.Model
	msg      string
	err      error
}

func newModel(v *vault.Vault, gen *otp.Generator, copyFn func(string) error, closeOnCopy bool) model {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search"

	label := textinput.New()
	label.Placeholder = "Label"
	secret := textinput.New()
	secret.Placeholder = "Base32 secret"
	secret.EchoMode = textinput.EchoPassword

	m := model{
		vault:       v,
		gen:         gen,
		copyFn:      copyFn,
		closeOnCopy: closeOnCopy,
		search:      search,
		form:        []textinput.Model{label, secret},
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30)),
	}
	m.refresh()
	return m
}

func (a *app) runTUI() error {
	v, err := a.openVault()
	if err != nil {
		return err
	}
	defer v.Close()

	m := newModel(v, otp.NewGenerator(a.now), a.copyText, a.cfg.CloseOnCopy)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-4, 10), 60)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}

	switch m.screen {
	case screenSearch:
		return m.updateSearch(msg)
	case screenAdd:
		return m.updateAdd(msg)
	case screenConfirmDelete:
		return m.updateConfirmDelete(msg)
	}
	return m.updateList(msg)
}

func (m *model) refresh() {
	m.entries = m.vault.Search(m.search.Value())
	if m.cursor >= len(m.entries) {
		m.cursor = max(len(m.entries)-1, 0)
	}
}

func (m model) selected() (vault.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return vault.Entry{}, false
	}
	return m.entries[m.cursor], true
}

// --- List ---

func (m model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "/":
		m.screen = screenSearch
		cmd := m.search.Focus()
		return m, cmd
	case "a":
		m.screen = screenAdd
		m.msg, m.err = "", nil
		cmd := m.form[0].Focus()
		return m, cmd
	case "d":
		if _, ok := m.selected(); ok {
			m.screen = screenConfirmDelete
		}
	case "enter", "c":
		return m.copySelected()
	}
	return m, nil
}

func (m model) copySelected() (tea.Model, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		return m, nil
	}
	code, _, err := m.gen.Code(e.Key)
	if err != nil {
		m.err = err
		return m, nil
	}
	if e.Type == otp.HOTP {
		next := e.Clone()
		next.Counter++
		if err := m.persist(func() error { return m.vault.Update(e.Label, next) }); err != nil {
			m.err = err
			return m, nil
		}
	}
	if err := m.copyFn(code); err != nil {
		m.err = fmt.Errorf("copy failed: %w", err)
		return m, nil
	}
	if m.closeOnCopy {
		return m, tea.Quit
	}
	m.msg, m.err = fmt.Sprintf("Copied code for %s", e.Label), nil
	return m, nil
}

// persist applies a change and saves it straight away. A change that cannot
// be saved is undone so memory never runs ahead of the file.
func (m *model) persist(change func() error) error {
	cp := m.vault.Checkpoint()
	defer cp.Discard()
	if err := change(); err != nil {
		return err
	}
	if err := m.vault.Save(); err != nil {
		cp.Restore()
		m.refresh()
		return err
	}
	m.refresh()
	return nil
}

// --- Search ---

func (m model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc:
			m.search.SetValue("")
			fallthrough
		case tea.KeyEnter:
			m.search.Blur()
			m.screen = screenList
			m.refresh()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.cursor = 0
	m.refresh()
	return m, cmd
}

// --- Add ---

func (m model) updateAdd(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc:
			m.resetForm()
			m.screen = screenList
			m.err = nil
			return m, nil
		case tea.KeyTab, tea.KeyShiftTab:
			cmd := m.focusNext()
			return m, cmd
		case tea.KeyEnter:
			if m.form[0].Focused() {
				cmd := m.focusNext()
				return m, cmd
			}
			return m.saveAdd()
		}
	}
	var cmd tea.Cmd
	for i := range m.form {
		if m.form[i].Focused() {
			m.form[i], cmd = m.form[i].Update(msg)
		}
	}
	return m, cmd
}

func (m *model) focusNext() tea.Cmd {
	n := len(m.form)
	for i := range m.form {
		if m.form[i].Focused() {
			m.form[i].Blur()
			return m.form[(i+1)%n].Focus()
		}
	}
	return m.form[0].Focus()
}

func (m model) saveAdd() (tea.Model, tea.Cmd) {
	e := vault.Entry{Label: strings.TrimSpace(m.form[0].Value())}
	secret, err := otp.DecodeSecret(m.form[1].Value())
	if err != nil {
		m.err = err
		return m, nil
	}
	e.Secret = secret
	defer vault.Zero(secret)

	if err := m.persist(func() error { return m.vault.Add(e) }); err != nil {
		m.err = err
		return m, nil
	}
	m.resetForm()
	m.screen = screenList
	m.msg, m.err = fmt.Sprintf("Added %s", e.Label), nil
	return m, nil
}

func (m *model) resetForm() {
	for i := range m.form {
		m.form[i].SetValue("")
		m.form[i].Blur()
	}
}

// --- Delete ---

func (m model) updateConfirmDelete(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	m.screen = screenList
	if key.String() != "y" {
		return m, nil
	}
	e, ok := m.selected()
	if !ok {
		return m, nil
	}
	if err := m.persist(func() error { return m.vault.Delete(e.Label) }); err != nil {
		m.err = err
		return m, nil
	}
	m.msg, m.err = fmt.Sprintf("Deleted %s", e.Label), nil
	return m, nil
}

// --- View ---

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("dotp") + "\n\n")

	switch m.screen {
	case screenAdd:
		b.WriteString(titleStyle.Render("Add entry") + "\n\n")
		for _, ti := range m.form {
			fmt.Fprintf(&b, "%-14s %s\n", ti.Placeholder+":", ti.View())
		}
		if m.err != nil {
			b.WriteString("\n" + errStyle.Render(m.err.Error()) + "\n")
		}
		b.WriteString("\n" + helpStyle.Render("tab: next field  enter: save  esc: cancel"))
		return b.String()
	case screenSearch:
		b.WriteString(m.search.View() + "\n\n")
	default:
		if q := m.search.Value(); q != "" {
			b.WriteString(helpStyle.Render("filter: "+q) + "\n\n")
		}
	}

	if len(m.entries) == 0 {
		b.WriteString("No entries.\n")
	}
	width := 0
	for _, e := range m.entries {
		width = max(width, lipgloss.Width(e.Label))
	}
	for i, e := range m.entries {
		code, left := "hotp", fmt.Sprintf("#%d", e.Counter)
		if e.Type != otp.HOTP {
			c, l, err := m.gen.Code(e.Key)
			if err != nil {
				c = "error"
			}
			code, left = c, fmt.Sprintf("%2ds", l)
		}
		line := fmt.Sprintf("%-*s  %s  %s", width, e.Label, codeStyle.Render(code), left)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if e, ok := m.selected(); ok && e.Type != otp.HOTP {
		if _, left, err := m.gen.Code(e.Key); err == nil {
			b.WriteString("\n" + m.progress.ViewAs(float64(left)/float64(e.Period)) + "\n")
		}
	}

	switch {
	case m.screen == screenConfirmDelete:
		if e, ok := m.selected(); ok {
			b.WriteString("\n" + errStyle.Render(fmt.Sprintf("Delete %s? (y/n)", e.Label)))
		}
	case m.err != nil:
		b.WriteString("\n" + errStyle.Render(m.err.Error()))
	case m.msg != "":
		b.WriteString("\n" + msgStyle.Render(m.msg))
	}
	b.WriteString("\n" + helpStyle.Render("j/k: move  enter: copy  /: search  a: add  d: delete  q: quit"))
	return b.String()
}
