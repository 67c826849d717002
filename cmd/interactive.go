package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/remotesvc/logger"
	"github.com/adamgarcia4/goLearning/remotesvc/node"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
	"github.com/adamgarcia4/goLearning/remotesvc/transport"
)

var inMemory bool

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start interactive node manager",
	Long: `Start an interactive terminal UI for managing a group of peers.

Keyboard shortcuts:
  C - Create a new node
  D - Delete a node (shows selection menu)
  E - Export or withdraw the echo service on a node
  I - Invoke echo from a node on whichever peer exports it
  Q - Quit

Examples:
  remotesvc interactive
  remotesvc interactive --in-memory`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveCmd.Flags().BoolVar(&inMemory, "in-memory", false, "Run nodes on an in-process hub instead of gRPC")
}

// Node actions that need a node picked first.
const (
	actionDelete = "delete"
	actionToggle = "toggle"
	actionInvoke = "invoke"
)

type model struct {
	manager      *node.Manager
	nodes        []*node.Node
	action       string // non-empty while picking a node for it
	selected     int
	err          error
	status       string
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input in select mode
	calls        int    // echo calls issued, used to vary the payload
}

func initialModel() model {
	// Initialize logger for interactive mode (no stdout, only log buffer)
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false) // No prefix, no stdout
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	manager := node.NewManager()
	if inMemory {
		manager = node.NewInMemoryManager(transport.NewHub(logger.L()))
	}

	return model{
		manager:      manager,
		nodes:        []*node.Node{},
		selected:     0,
		logBuffer:    logBuffer,
		logScroll:    0,
		numericInput: "",
	}
}

func (m model) Init() tea.Cmd {
	// Refresh nodes list periodically
	return tea.Batch(tick(), refreshNodes(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return nodesUpdatedMsg{nodes: manager.GetNodes()}
	}
}

type nodesUpdatedMsg struct {
	nodes []*node.Node
}

type shutdownCompleteMsg struct {
	err error
}

type callDoneMsg struct {
	from   string
	target registry.Reference
	result any
	err    error
}

// shutdownNodes stops all nodes and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		err := manager.StopAll()
		return shutdownCompleteMsg{err: err}
	}
}

// invokeEcho calls echo from n on the first peer exporting it.
func invokeEcho(n *node.Node, payload string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), n.GetConfig().DefaultTimeout)
		defer cancel()
		result, ref, err := n.CallInterface(ctx, node.EchoInterface, "echo", payload)
		return callDoneMsg{from: n.ID().String(), target: ref, result: result, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// Stop all nodes gracefully and wait for completion
			return m, shutdownNodes(m.manager)
		}

		// Handle node selection
		if m.action != "" {
			return m.handleSelectMode(msg)
		}

		// Handle normal mode
		switch msg.String() {
		case "c", "C":
			m = m.createNode()
			if m.err == nil {
				m.lastCommand = "create" // Remember this command
			}
			return m, nil

		case "d", "D":
			return m.enterSelectMode(actionDelete), nil

		case "e", "E":
			return m.enterSelectMode(actionToggle), nil

		case "i", "I":
			return m.enterSelectMode(actionInvoke), nil

		case "enter":
			// Repeat last command/sequence
			if m.lastCommand == "" {
				// No previous command, do nothing
				return m, nil
			}
			if m.lastCommand == "create" {
				return m.createNode(), nil
			}

			// Node actions are stored as "action:index"
			parts := strings.Split(m.lastCommand, ":")
			if len(parts) == 2 {
				if index, err := strconv.Atoi(parts[1]); err == nil {
					if index < 0 || index >= len(m.nodes) {
						m.err = fmt.Errorf("node index %d no longer exists", index+1)
						return m, nil
					}
					return m.apply(parts[0], index)
				}
			}
			return m, nil

		case "esc":
			m.err = nil
			m.status = ""
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			// Check how many total entries we have to determine max scroll
			maxScroll := m.logBuffer.Len() - 15 // Can scroll back until we have 15 entries left
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		// Refresh nodes list
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.nodes = msg.nodes
		return m, nil

	case callDoneMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: echo failed: %w", msg.from, msg.err)
			m.status = ""
		} else {
			m.err = nil
			m.status = fmt.Sprintf("%s -> %s: %v", msg.from, msg.target, msg.result)
			logger.Infof("%s called echo on %s: %v", msg.from, msg.target, msg.result)
		}
		return m, nil

	case shutdownCompleteMsg:
		// Log any shutdown errors via the logger
		if msg.err != nil {
			logger.Printf("Error stopping nodes during shutdown: %v", msg.err)
		}
		// Now quit after shutdown is complete
		return m, tea.Quit
	}

	return m, nil
}

func (m model) createNode() model {
	n, err := m.manager.CreateNode()
	if err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.status = fmt.Sprintf("created %s at %s", n.ID(), n.Addr())
	m.nodes = m.manager.GetNodes()
	return m
}

func (m model) enterSelectMode(action string) model {
	if len(m.nodes) == 0 {
		m.err = fmt.Errorf("no nodes to %s", action)
		return m
	}
	m.action = action
	m.selected = 0
	m.numericInput = "" // Reset numeric input buffer
	// Don't set lastCommand yet - wait to see which node is picked
	return m
}

func (m model) leaveSelectMode() model {
	m.action = ""
	m.selected = 0
	m.numericInput = ""
	return m
}

// apply runs action against the node at index.
func (m model) apply(action string, index int) (tea.Model, tea.Cmd) {
	n := m.nodes[index]
	switch action {
	case actionDelete:
		if err := m.manager.DeleteNode(index); err != nil {
			m.err = err
			return m, nil
		}
		m.nodes = m.manager.GetNodes()
		m.err = nil
		m.status = fmt.Sprintf("deleted %s", n.ID())
		return m, nil

	case actionToggle:
		if n.EchoExported() {
			n.WithdrawEcho()
			m.status = fmt.Sprintf("%s withdrew %s", n.ID(), node.EchoInterface)
			m.err = nil
			return m, nil
		}
		if _, err := n.ExportEcho(); err != nil {
			m.err = err
			return m, nil
		}
		m.status = fmt.Sprintf("%s exported %s", n.ID(), node.EchoInterface)
		m.err = nil
		return m, nil

	case actionInvoke:
		m.calls++
		m.status = fmt.Sprintf("%s calling echo...", n.ID())
		return m, invokeEcho(n, fmt.Sprintf("hello #%d from %s", m.calls, n.ID()))
	}
	return m, nil
}

func (m model) handleSelectMode(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m = m.leaveSelectMode()
			m.err = nil
			return m, nil

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "j":
			if m.selected < len(m.nodes)-1 {
				m.selected++
			}
			return m, nil

		case "enter", " ":
			action := m.action
			index := m.selected

			// If there's numeric input, process that first
			if m.numericInput != "" {
				// Parse the entire input string as an integer
				input := m.numericInput
				m.numericInput = ""
				num, err := strconv.Atoi(input)
				if err != nil {
					m.err = fmt.Errorf("invalid number: %s", input)
					return m, nil
				}
				// Validate: 1 <= num <= len(m.nodes)
				if num < 1 || num > len(m.nodes) {
					m.err = fmt.Errorf("node %d does not exist (max: %d)", num, len(m.nodes))
					return m, nil
				}
				index = num - 1 // Convert to 0-based index
			}
			if index >= len(m.nodes) {
				m.err = fmt.Errorf("node %d does not exist (max: %d)", index+1, len(m.nodes))
				return m, nil
			}

			// Remember the sequence: action + node index
			m.lastCommand = fmt.Sprintf("%s:%d", action, index)
			m = m.leaveSelectMode()
			return m.apply(action, index)

		default:
			// Handle numeric input (supports multi-digit numbers)
			keyStr := msg.String()

			// Check if it's a digit (0-9)
			if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
				// Append to numeric input buffer
				m.numericInput += keyStr
				// Clear any previous error when typing
				if m.err != nil && strings.Contains(m.err.Error(), "does not exist") {
					m.err = nil
				}
				return m, nil
			}

			// Non-numeric key, clear the buffer
			m.numericInput = ""
			return m, nil
		}
	}
	return m, nil
}

// describeNode renders one row of the node list.
func describeNode(n *node.Node) string {
	s := n.Session()
	echo := " "
	if n.EchoExported() {
		echo = "E"
	}
	return fmt.Sprintf("%s %s (addr: %s, local: %d, remote: %d, peers: %d, in-flight: %d)",
		echo, n.ID(), n.Addr(),
		len(s.LocalSnapshot().Registrations),
		len(s.Lookup(registry.Query{})),
		len(s.Peers()),
		s.InFlight())
}

func (m model) View() string {
	var s strings.Builder

	// Title
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("Remote Service Registry"))
	s.WriteString("\n\n")

	// Status
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	} else if m.status != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n\n")
	}

	// Nodes list
	if len(m.nodes) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString("Running Nodes:\n\n")
		for i, n := range m.nodes {
			if m.action != "" && i == m.selected {
				// Highlight selected node in select mode
				nodeStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("196")).
					Bold(true)
				s.WriteString(nodeStyle.Render(fmt.Sprintf("[%d] > %s", i+1, describeNode(n))))
				s.WriteString("\n")
			} else {
				s.WriteString(fmt.Sprintf("  [%d]   %s\n", i+1, describeNode(n)))
			}
		}
		s.WriteString("\n")
	}

	// Logs section - single unified box
	s.WriteString("\n")

	// Get all log entries once to avoid redundant buffer access
	allEntries := m.logBuffer.GetAll()
	totalCount := len(allEntries)

	// Get recent logs (show last 15 entries, adjusted by scroll)
	logCount := 15
	maxScroll := 100 // Maximum scroll back

	// Calculate how many entries we need to fetch
	// We need logCount entries to display, plus logScroll to scroll back
	entriesNeeded := logCount + m.logScroll
	if entriesNeeded > maxScroll+logCount {
		entriesNeeded = maxScroll + logCount
	}

	var logLines []string
	if totalCount == 0 {
		logLines = []string{"     | (no logs yet)"}
	} else {
		// Derive recent entries from allEntries (take last entriesNeeded entries)
		// If entriesNeeded > totalCount, we'll use all entries
		recentStart := totalCount - entriesNeeded
		if recentStart < 0 {
			recentStart = 0
		}
		logEntries := allEntries[recentStart:]

		// Calculate the range to display from logEntries
		// logScroll=0 means show most recent logCount entries
		// logScroll=1 means show entries starting 1 position back, etc.
		start := len(logEntries) - logCount - m.logScroll
		if start < 0 {
			start = 0
		}
		end := len(logEntries) - m.logScroll
		if end > len(logEntries) {
			end = len(logEntries)
		}
		if end <= start {
			end = start + logCount
			if end > len(logEntries) {
				end = len(logEntries)
				start = end - logCount
				if start < 0 {
					start = 0
				}
			}
		}

		// Show entries in reverse order (newest first) with line numbers
		// Most recent = 0, older entries count up
		// Line number is based on position in full buffer, not display position
		// logEntries[i] corresponds to allEntries[recentStart + i]
		// Position in full buffer = recentStart + i
		// Line number: most recent (position totalCount-1) = 0
		// So line number = totalCount - 1 - (recentStart + i)
		for i := end - 1; i >= start; i-- {
			// Calculate line number based on position in full buffer
			positionInFullBuffer := recentStart + i
			// Line number: most recent (position totalCount-1) = 0
			// So line number = totalCount - 1 - positionInFullBuffer
			lineNumber := totalCount - 1 - positionInFullBuffer
			if lineNumber < 0 {
				lineNumber = 0
			}

			// Format with line number (right-aligned, 4 digits)
			lineNum := fmt.Sprintf("%4d", lineNumber)
			logLines = append(logLines, fmt.Sprintf("%s | %s", lineNum, logger.FormatLogEntry(logEntries[i])))
		}
	}

	// Create a single log box with title - use terminal width if available, otherwise default
	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	// Combine title and content
	logContent := "Logs:\n" + strings.Join(logLines, "\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(13).
		Width(boxWidth)

	s.WriteString(logStyle.Render(logContent))
	s.WriteString("\n\n")

	// Instructions
	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	if m.action != "" {
		mode := strings.ToUpper(m.action)
		helpText := fmt.Sprintf("%s: Use ↑/↓/j/k or type node number (1-%d), Enter to confirm, Esc to cancel", mode, len(m.nodes))
		if m.numericInput != "" {
			helpText = fmt.Sprintf("%s: Type node number (current: %s) or Enter to confirm, Esc to cancel", mode, m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(helpText))
	} else {
		instructionText := "C create | D delete | E toggle echo | I invoke echo"

		// Add inline preview if there's a last command
		if m.lastCommand != "" {
			instructionText += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		} else {
			instructionText += " | Enter to repeat last command"
		}

		instructionText += " | ↑/↓/j/k to scroll logs | Q to quit"
		s.WriteString(instructionsStyle.Render(instructionText))
	}

	return s.String()
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	if lastCommand == "create" {
		return "C"
	}
	keys := map[string]string{actionDelete: "D", actionToggle: "E", actionInvoke: "I"}
	// Parse "action:0" format
	parts := strings.Split(lastCommand, ":")
	if len(parts) == 2 {
		if key, ok := keys[parts[0]]; ok {
			if index, err := strconv.Atoi(parts[1]); err == nil {
				// Show as multi-step: D → 1 (where 1 is index+1)
				return fmt.Sprintf("%s → %d", key, index+1)
			}
			return key + " → [node]"
		}
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running interactive mode: %v\n", err)
	}
}
