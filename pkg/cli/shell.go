// Zaparoo Echo
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Echo.
//
// Zaparoo Echo is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Echo is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Echo.  If not, see <http://www.gnu.org/licenses/>.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ZaparooProject/zaparoo-echo/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-echo/pkg/ndef"
	"github.com/ZaparooProject/zaparoo-echo/pkg/radio"
	"github.com/ZaparooProject/zaparoo-echo/pkg/service"
	"github.com/ZaparooProject/zaparoo-echo/pkg/session"
	"github.com/ZaparooProject/zaparoo-echo/pkg/tags"
)

const shellHelp = `Commands:
  scan          start a scan, or stop the running one
  stop          stop scanning or emitting
  emit [id]     emulate an archived tag (latest when no id)
  delete <id>   delete an archived tag
  list          list archived tags
  show <id>     print an archived tag's records
  export <id>   print an archived tag as a dump the file and mqtt radios read
  status        print the last status
  help          print this help
  quit          exit
`

var errQuit = errors.New("quit")

// Output serializes writes from the shell and the status callback.
type Output struct {
	w  io.Writer
	mu syncutil.Mutex
}

func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}

// PrintStatus writes a status line. Use it as service.Options.OnStatus.
// A finished scan also prints the archived item, or a hint to retry.
func (o *Output) PrintStatus(s session.Status) {
	_, _ = fmt.Fprintf(o, "* %s\n", s.Text())
	if !s.IsTerminalScan() {
		return
	}
	if s.Item != nil {
		printItem(o, s.Item)
		return
	}
	_, _ = fmt.Fprint(o, "Type scan to try again.\n")
}

// SettingsHint stands in for the system NFC settings screen.
type SettingsHint struct {
	Out        io.Writer
	ConfigPath string
}

func (h SettingsHint) OpenNFCSettings(context.Context) error {
	_, _ = fmt.Fprintf(h.Out,
		"The reader is switched off or unplugged. Check the connection and the [radio] section of %s.\n",
		h.ConfigPath)
	return nil
}

type Shell struct {
	svc *service.Service
	out io.Writer
}

func NewShell(svc *service.Service, out io.Writer) *Shell {
	return &Shell{svc: svc, out: out}
}

// Run reads commands from in until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	_, _ = fmt.Fprint(s.out, "Type help for commands.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.svc.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			err := s.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			}
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	engine := s.svc.Engine

	switch strings.ToLower(fields[0]) {
	case "scan":
		return engine.StartScan(ctx)
	case "stop":
		switch engine.Mode().Kind {
		case session.ModeScanning:
			return engine.StopScan(ctx)
		case session.ModeEmitting:
			return engine.StopEmit(ctx)
		case session.ModeIdle:
			_, _ = fmt.Fprint(s.out, "Nothing to stop.\n")
		}
		return nil
	case "emit":
		if arg == "" {
			items := s.svc.Archive.Items()
			if len(items) == 0 {
				return errors.New("archive is empty")
			}
			arg = items[0].ID
		}
		return s.svc.EmitItem(ctx, arg)
	case "delete", "rm":
		if arg == "" {
			return errors.New("delete needs an item id")
		}
		return engine.DeleteItem(ctx, arg)
	case "list", "ls":
		printList(s.out, s.svc.Archive.Items())
		return nil
	case "show":
		if arg == "" {
			return errors.New("show needs an item id")
		}
		item, ok := s.svc.Item(arg)
		if !ok {
			return fmt.Errorf("no item %s", arg)
		}
		printItem(s.out, &item)
		return nil
	case "export":
		if arg == "" {
			return errors.New("export needs an item id")
		}
		item, ok := s.svc.Item(arg)
		if !ok {
			return fmt.Errorf("no item %s", arg)
		}
		return printDump(s.out, &item)
	case "status":
		last := engine.LastStatus()
		_, _ = fmt.Fprintf(s.out, "%s (mode: %s)\n", last.Text(), engine.Mode())
		return nil
	case "help", "?":
		_, _ = fmt.Fprint(s.out, shellHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type help for commands", fields[0])
	}
}

func printList(out io.Writer, items []tags.ScannedItem) {
	if len(items) == 0 {
		_, _ = fmt.Fprint(out, "No archived tags.\n")
		return
	}
	for i := range items {
		item := &items[i]
		_, _ = fmt.Fprintf(out, "%s  %s  %d record(s)\n",
			item.ID, item.CreatedAt.Format("2006-01-02 15:04:05"), len(item.Records))
	}
}

func printItem(out io.Writer, item *tags.ScannedItem) {
	_, _ = fmt.Fprintf(out, "%s\n%s\n", item.ID, item.Summary)
	if item.Summary == "" && len(item.Records) > 0 {
		_, _ = fmt.Fprintln(out, ndef.RenderString(item.Records))
	}
}

func printDump(out io.Writer, item *tags.ScannedItem) error {
	dump, err := radio.FormatDump(tags.ItemTagID(item.ID), item.Records)
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", item.ID, err)
	}
	_, _ = out.Write(dump)
	return nil
}
