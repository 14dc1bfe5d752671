package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fendesk/fendesk/session"
)

const (
	promptMain  = "> "
	promptCont  = ". "
	clearScreen = "\033[H\033[2J"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session (the default)",
	Args:  cobra.NoArgs,
	Run:   replCommand,
}

func replCommand(cmd *cobra.Command, args []string) {
	s := loadSettings()
	sess := openSession(s)
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if !s.Rates.Disabled {
		sess.RefreshRates(ctx)
		go sess.KeepRatesFresh(ctx, time.Minute)
	}

	r := &repl{sess: sess, out: os.Stdout}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		r.runBasic(os.Stdin)
		return
	}
	r.runLiner(s.History.Limit)
}

// repl turns input lines into session commands and prints the outcome.
type repl struct {
	sess *session.Session
	out  io.Writer
	// onCommit is called with every committed input.
	onCommit func(input string)
}

// handle processes one complete input and reports whether to stop.
func (r *repl) handle(input string) bool {
	trimmed := strings.TrimSpace(input)
	switch trimmed {
	case "":
		return false
	case "clear":
		fmt.Fprint(r.out, clearScreen)
		return false
	case ":quit", ":q", ":exit":
		return true
	case ":history":
		r.showHistory()
		return false
	case ":vars":
		r.showVars()
		return false
	case ":rates":
		r.showRates()
		return false
	}
	if strings.HasPrefix(trimmed, ":") {
		fmt.Fprintln(r.out, color.Yellow.Sprintf("unknown command %s; try :history, :vars, :rates or :quit", trimmed))
		return false
	}

	if strings.HasSuffix(trimmed, "?") {
		out, err := r.sess.Preview(strings.TrimSuffix(trimmed, "?"), r.sess.PreviewTimeout())
		if err != nil {
			fmt.Fprintln(r.out, color.Gray.Sprint(err.Error()))
			return false
		}
		if out != "" {
			fmt.Fprintln(r.out, color.Gray.Sprint(out))
		}
		return false
	}

	out, err := r.sess.Commit(input, r.sess.CommitTimeout())
	if r.onCommit != nil {
		r.onCommit(input)
	}
	if err != nil {
		fmt.Fprintln(r.out, color.Red.Sprint(err.Error()))
		return false
	}
	if out != "" {
		fmt.Fprintln(r.out, out)
	}
	return false
}

func (r *repl) showHistory() {
	entries, err := r.sess.History(20)
	if err != nil {
		fmt.Fprintln(r.out, color.Red.Sprint(err.Error()))
		return
	}
	for _, e := range entries {
		in := strings.ReplaceAll(e.Input, "\n", "; ")
		if e.Failed {
			fmt.Fprintf(r.out, "%s %s\n", color.Cyan.Sprint(in), color.Red.Sprint(e.Output))
			continue
		}
		fmt.Fprintf(r.out, "%s %s\n", color.Cyan.Sprint(in), e.Output)
	}
}

func (r *repl) showVars() {
	for _, name := range r.sess.Names() {
		v, _ := r.sess.Lookup(name)
		fmt.Fprintf(r.out, "%s = %s\n", color.Cyan.Sprint(name), v)
	}
}

func (r *repl) showRates() {
	snap := r.sess.Rates()
	if snap == nil {
		fmt.Fprintln(r.out, color.Yellow.Sprint("exchange rates are not available"))
		return
	}
	fmt.Fprintf(r.out, "rates from %s, %d currencies against %s\n", snap.Date, len(snap.Codes()), snap.Base)
}

// readInput gathers lines from prompt until they form a complete input. A
// line ending in a colon opens a block that runs until an empty line.
func readInput(prompt func(p string) (string, error)) (string, error) {
	var b strings.Builder
	block := false
	for {
		p := promptMain
		if b.Len() > 0 {
			p = promptCont
		}
		line, err := prompt(p)
		if err != nil {
			return b.String(), err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if strings.HasSuffix(strings.TrimSpace(line), ":") {
			block = true
		}
		if !block || strings.TrimSpace(line) == "" {
			return strings.TrimRight(b.String(), "\n"), nil
		}
	}
}

func (r *repl) runLiner(historyLimit int) {
	fmt.Fprintln(r.out, color.Cyan.Sprint("fendesk (Ctrl+D or :quit to exit, end a line with ? to preview)"))

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if entries, err := r.sess.History(historyLimit); err == nil {
		for _, e := range entries {
			ln.AppendHistory(strings.ReplaceAll(e.Input, "\n", " "))
		}
	} else {
		log.Warn().Err(err).Msg("Couldn't read history")
	}
	r.onCommit = func(input string) {
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))
	}

	for {
		input, err := readInput(ln.Prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("Couldn't read input")
			}
			fmt.Fprintln(r.out)
			return
		}
		if r.handle(input) {
			return
		}
	}
}

// runBasic commits lines from a non-terminal reader, such as a pipe.
func (r *repl) runBasic(in io.Reader) {
	scanner := bufio.NewScanner(in)
	prompt := func(string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	for {
		input, err := readInput(prompt)
		if err != nil {
			if strings.TrimSpace(input) != "" {
				r.handle(input)
			}
			return
		}
		if r.handle(input) {
			return
		}
	}
}
