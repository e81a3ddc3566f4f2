// Package repl implements the line-oriented command loop that the crocdb
// binaries expose over stdin or a TCP connection.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ReplCommand is the action run for a trigger. It receives the full input
// line (trigger included) and the per-client config.
type ReplCommand func(payload string, replConfig *REPLConfig) (output string, err error)

const (
	// Trigger for the help meta-command that prints out all help strings.
	TriggerHelpMetacommand = ".help"

	// String prepended to any error before being sent to the output writer.
	ErrorPrependStr = "ERROR: "
)

var (
	// Error for when combined REPLs define the same trigger twice.
	ErrOverlappingCommands = errors.New("found overlapping commands")

	// Error for when a sent trigger is not associated with any known command.
	ErrCommandNotFound = errors.New("command not found")
)

// REPL maps command triggers to their actions and help strings.
type REPL struct {
	commands map[string]ReplCommand
	help     map[string]string
}

// REPLConfig identifies the client a REPL loop is serving.
type REPLConfig struct {
	clientId uuid.UUID
}

// GetAddr returns the id of the client this config belongs to.
func (replConfig *REPLConfig) GetAddr() uuid.UUID {
	return replConfig.clientId
}

// NewRepl constructs an empty REPL.
func NewRepl() *REPL {
	return &REPL{
		commands: make(map[string]ReplCommand),
		help:     make(map[string]string),
	}
}

// CombineRepls merges a slice of REPLs into one. Errors if any two REPLs
// define the same trigger. With no REPLs given, returns a new empty REPL.
func CombineRepls(repls []*REPL) (*REPL, error) {
	combined := NewRepl()
	for _, r := range repls {
		for trigger, action := range r.commands {
			if _, exists := combined.commands[trigger]; exists {
				return nil, ErrOverlappingCommands
			}
			combined.AddCommand(trigger, action, r.help[trigger])
		}
	}
	return combined, nil
}

// GetCommands returns the trigger-to-action map.
func (r *REPL) GetCommands() map[string]ReplCommand {
	return r.commands
}

// GetHelp returns the trigger-to-help map.
func (r *REPL) GetHelp() map[string]string {
	return r.help
}

// AddCommand registers a command and its help string, overwriting any
// previous command with the same trigger.
func (r *REPL) AddCommand(trigger string, action ReplCommand, help string) {
	if trigger == TriggerHelpMetacommand {
		return
	}
	r.commands[trigger] = action
	r.help[trigger] = help
}

// HelpString returns all commands' help strings as one string.
func (r *REPL) HelpString() string {
	var sb strings.Builder
	for k, v := range r.help {
		sb.WriteString(fmt.Sprintf("%s: %s\n", k, v))
	}
	return sb.String()
}

// Run reads lines from input and dispatches them to commands, writing
// results to output. Input and output default to stdin and stdout.
func (r *REPL) Run(clientId uuid.UUID, prompt string, input io.Reader, output io.Writer) {
	if input == nil {
		input = os.Stdin
	}
	if output == nil {
		output = os.Stdout
	}

	scanner := bufio.NewScanner(input)
	replConfig := &REPLConfig{clientId: clientId}
	fmt.Fprintf(output, "Welcome to the %s REPL! Type '.help' to see the list of available commands.\n", "crocdb")
	io.WriteString(output, prompt)

	for scanner.Scan() {
		payload := scanner.Text()
		fields := strings.Fields(payload)
		if len(fields) == 0 {
			io.WriteString(output, prompt)
			continue
		}
		trigger := fields[0]

		if trigger == TriggerHelpMetacommand {
			io.WriteString(output, r.HelpString())
			io.WriteString(output, prompt)
			continue
		}

		if command, exists := r.commands[trigger]; exists {
			result, err := command(payload, replConfig)
			if err != nil {
				fmt.Fprintf(output, "%s%s\n", ErrorPrependStr, err)
			} else {
				if len(result) != 0 && !strings.HasSuffix(result, "\n") {
					result += "\n"
				}
				io.WriteString(output, result)
			}
		} else {
			fmt.Fprintf(output, "%s%s\n", ErrorPrependStr, ErrCommandNotFound)
		}
		io.WriteString(output, prompt)
	}
	// Print an additional line if we encountered an EOF character.
	io.WriteString(output, "\n")
}

// RunChan drives the REPL from a channel of input lines, writing results
// to stdout.
func (r *REPL) RunChan(c chan string, clientId uuid.UUID, prompt string) {
	writer := os.Stdout
	replConfig := &REPLConfig{clientId: clientId}
	io.WriteString(writer, prompt)
	for payload := range c {
		io.WriteString(writer, payload+"\n")
		fields := strings.Fields(payload)
		if len(fields) == 0 {
			io.WriteString(writer, prompt)
			continue
		}
		trigger := fields[0]
		if trigger == TriggerHelpMetacommand {
			io.WriteString(writer, r.HelpString())
			io.WriteString(writer, prompt)
			continue
		}
		if command, exists := r.commands[trigger]; exists {
			result, err := command(payload, replConfig)
			if err != nil {
				fmt.Fprintf(writer, "%s%s\n", ErrorPrependStr, err)
			} else {
				io.WriteString(writer, fmt.Sprintln(result))
			}
		} else {
			fmt.Fprintln(writer, ErrCommandNotFound.Error())
		}
		io.WriteString(writer, prompt)
	}
	io.WriteString(writer, "\n")
}
