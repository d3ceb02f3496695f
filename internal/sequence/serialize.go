package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/zgoubigo/internal/command"
)

// Serialize renders the sequence as a complete engine input deck: the
// sequence name as header line, one fixed-format block per command, and an
// implicit terminal End block when the last command is not already
// terminal.
func (s *Sequence) Serialize() (string, error) {
	var b strings.Builder
	b.WriteString(s.name)
	b.WriteString("\n")
	for _, c := range s.line {
		text, err := c.Serialize()
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	if len(s.line) == 0 || !s.line[len(s.line)-1].IsTerminal() {
		end := command.New(command.End, command.WithLabel1("END"))
		text, err := end.Serialize()
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// Write validates the sequence, serializes it, and writes the deck to
// filename inside dir. Any validator failure aborts before anything is
// written.
func (s *Sequence) Write(dir, filename string, validators ...Validator) error {
	if err := s.Validate(validators...); err != nil {
		return err
	}
	text, err := s.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filename), []byte(text), 0o644)
}

// Parse reads a serialized deck back into a sequence. The first line is the
// sequence name; every line starting with a quoted keyword opens a block.
// Commands are rebuilt from the registry with their labels; block parameter
// lines are not decoded, so parsed commands carry their kind's declared
// parameter set at default values.
func Parse(text string, reg *command.Registry) (*Sequence, error) {
	lines := strings.Split(text, "\n")
	var name string
	var seq *Sequence
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if seq == nil {
			name = line
			seq = New(name)
			continue
		}
		if !strings.HasPrefix(line, "'") {
			continue
		}
		closing := strings.Index(line[1:], "'")
		if closing < 0 {
			return nil, fmt.Errorf("sequence: malformed block header %q", line)
		}
		keyword := line[1 : closing+1]
		def, ok := reg.Lookup(keyword)
		if !ok {
			return nil, fmt.Errorf("sequence: unknown command keyword %q", keyword)
		}
		rest := strings.Fields(line[closing+2:])
		opts := []command.Option{}
		if len(rest) > 0 {
			opts = append(opts, command.WithLabel1(rest[0]))
		}
		if len(rest) > 1 {
			opts = append(opts, command.WithLabel2(rest[1]))
		}
		seq.Append(command.New(def, opts...))
	}
	if seq == nil {
		return nil, fmt.Errorf("sequence: empty deck")
	}
	return seq, nil
}
