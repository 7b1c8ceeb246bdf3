/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// LineReader wraps readline.Instance to give the admin console history
// and tab completion instead of plain line-buffered input.
type LineReader struct {
	inst *readline.Instance
}

// NewLineReader builds a LineReader with a persisted history file and tab
// completion over the given command names (aliases included). historyPath
// may be empty, in which case history is kept in memory only for the
// session.
func NewLineReader(prompt, historyPath string, commands []string) (*LineReader, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, c := range commands {
		items = append(items, readline.PcItem(c))
	}
	cfg := &readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	inst, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &LineReader{inst: inst}, nil
}

// Readline reads one line with history and completion, returning io.EOF
// on ^D and readline.ErrInterrupt on ^C (surfaced unwrapped so callers can
// treat repeated ^C as a quit signal the way a shell does).
func (r *LineReader) Readline() (string, error) {
	line, err := r.inst.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// SetPrompt updates the prompt text, used when the console's selected
// group or role changes.
func (r *LineReader) SetPrompt(prompt string) {
	r.inst.SetPrompt(prompt)
}

// Close flushes history to disk and restores the terminal.
func (r *LineReader) Close() error {
	return r.inst.Close()
}

// IsInterrupt reports whether err is readline's ^C sentinel.
func IsInterrupt(err error) bool {
	return err == readline.ErrInterrupt
}

// IsEOF reports whether err is the ^D/end-of-input sentinel.
func IsEOF(err error) bool {
	return err == io.EOF
}
