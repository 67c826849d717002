package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogBufferWriter is an io.Writer that feeds a LogBuffer.
//
// Lines are expected to be zerolog JSON events; the "peer" field becomes
// the entry's PeerID. Plain lines of the form "[peerID] message" are
// accepted as well.
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var peerIDRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// Keep the partial line for the next write.
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		lw.buffer.AddEntry(parseLine(line))
	}

	return len(p), nil
}

type jsonEvent struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Peer      string `json:"peer"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

func parseLine(line string) LogEntry {
	entry := LogEntry{Timestamp: time.Now(), Level: "info", PeerID: "system", Message: line}

	var ev jsonEvent
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &ev) == nil {
		if ev.Peer != "" {
			entry.PeerID = ev.Peer
		}
		if ev.Level != "" {
			entry.Level = ev.Level
		}
		if ts, err := time.Parse(zerolog.TimeFieldFormat, ev.Time); err == nil {
			entry.Timestamp = ts
		}
		msg := ev.Message
		if ev.Component != "" {
			msg = ev.Component + ": " + msg
		}
		if ev.Error != "" {
			msg += " (" + ev.Error + ")"
		}
		entry.Message = msg
		return entry
	}

	if matches := peerIDRegex.FindStringSubmatch(line); len(matches) == 3 {
		entry.PeerID = matches[1]
		entry.Message = matches[2]
	}
	return entry
}
