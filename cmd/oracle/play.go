package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/storage"
	"github.com/michaelbrown/oracle/internal/tools"
	"github.com/michaelbrown/oracle/internal/tutor"
)

var playCmd = &cobra.Command{
	Use:   "play [level]",
	Short: "Solve puzzles interactively",
	Long: `Start an interactive session. Type Python code line by line, then /run
to have the Oracle judge it. Without a level argument, play resumes at the
first unsolved level.

Examples:
  oracle play
  oracle play 4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

// session is the state of one play session. Output goes to out so commands
// can be exercised without a terminal.
type session struct {
	e          *env
	store      storage.Store
	tutor      *tutor.Tutor
	out        io.Writer
	level      *level.Level
	buf        []string
	lastReport *evaluator.Report
	hintsShown int
	quit       bool
}

func runPlay(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	store, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	s := &session{e: e, store: store, out: os.Stdout}

	registry := tools.NewRegistry(e.log)
	defer registry.Close()
	if err := registry.RegisterAll(context.Background(), e.cfg.Tools); err != nil {
		e.log.Warn("some tool servers failed to start", zap.Error(err))
	}
	t, err := app.NewTutor(e.cfg, e.core.Evaluator, registry, e.log)
	switch {
	case err == nil:
		s.tutor = t
		s.wireTutorOutput()
	case errors.Is(err, app.ErrTutorDisabled):
	default:
		return err
	}

	l, err := s.startLevel(context.Background(), args)
	if err != nil {
		return err
	}
	s.setLevel(context.Background(), l)

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36m>>>\033[0m ",
		HistoryFile:     filepath.Join(home, ".oracle", "play_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(s.out, "Type code, then /run. /help lists commands.\n\n")

	// Ctrl+C cancels the active evaluation or tutor request, not the session.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for !s.quit {
		s.setPrompt(rl)
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "\nFarewell, seeker.")
				return nil
			}
			return err
		}

		if !strings.HasPrefix(strings.TrimSpace(line), "/") {
			s.buf = append(s.buf, line)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel
		s.handleCommand(ctx, strings.TrimSpace(line))
		if ctx.Err() != nil {
			fmt.Fprintln(s.out, "(interrupted)")
		}
		cancel()
		reqCancel = nil
	}
	return nil
}

func (s *session) setPrompt(rl *readline.Instance) {
	if len(s.buf) > 0 {
		rl.SetPrompt("\033[36m...\033[0m ")
		return
	}
	rl.SetPrompt(fmt.Sprintf("\033[36m[%d] >>>\033[0m ", s.level.Number))
}

func (s *session) wireTutorOutput() {
	s.tutor.OnTextDelta = func(delta string) {
		fmt.Fprint(s.out, delta)
	}
	s.tutor.OnToolCall = func(name string, args map[string]any) {
		fmt.Fprintf(s.out, "\n  \033[33m⚡ %s\033[0m\n", tutor.FormatToolCall(name, args))
	}
	s.tutor.OnToolResult = func(name string, result string) {
		lines := strings.Split(strings.TrimSpace(result), "\n")
		for i, line := range lines {
			if i == 6 {
				fmt.Fprintf(s.out, "  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-6)
				break
			}
			fmt.Fprintf(s.out, "  \033[90m│ %s\033[0m\n", line)
		}
	}
}

// startLevel picks the level named in args, or the first unsolved one.
func (s *session) startLevel(ctx context.Context, args []string) (*level.Level, error) {
	catalog := s.e.core.Catalog
	if len(args) == 1 {
		return catalog.Get(args[0])
	}
	progress, err := s.store.Progress(ctx)
	if err != nil {
		return nil, err
	}
	solved := make(map[string]bool, len(progress))
	for _, p := range progress {
		solved[p.LevelID] = p.Solved
	}
	for _, l := range catalog.All() {
		if !solved[l.ID] {
			return l, nil
		}
	}
	return catalog.All()[0], nil
}

func (s *session) setLevel(ctx context.Context, l *level.Level) {
	s.level = l
	s.buf = nil
	s.lastReport = nil
	s.hintsShown = 0
	printLevelTo(s.out, l)

	if s.tutor == nil {
		return
	}
	s.tutor.SetLevel(l)
	msgs, err := s.store.LoadConversation(ctx, l.ID)
	if err != nil {
		s.e.log.Warn("loading conversation", zap.String("level", l.ID), zap.Error(err))
		return
	}
	if len(msgs) > 0 {
		s.tutor.SetHistory(msgs)
	}
}

func (s *session) code() string {
	return strings.Join(s.buf, "\n") + "\n"
}

func (s *session) handleCommand(ctx context.Context, input string) {
	fields := strings.Fields(input)
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch strings.ToLower(fields[0]) {
	case "/run", "/r":
		s.run(ctx)
	case "/hint", "/h":
		s.hint(ctx, arg)
	case "/show", "/s":
		printLevelTo(s.out, s.level)
		if len(s.buf) > 0 {
			fmt.Fprintf(s.out, "\nYour code:\n%s", s.code())
		}
	case "/clear", "/c":
		s.buf = nil
		fmt.Fprintln(s.out, "Code cleared.")
	case "/starter":
		s.buf = strings.Split(strings.TrimRight(s.level.StarterCode(), "\n"), "\n")
		fmt.Fprintf(s.out, "%s", s.code())
	case "/load":
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintf(s.out, "\033[31m%s\033[0m\n", err)
			return
		}
		s.buf = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		fmt.Fprintf(s.out, "Loaded %d lines from %s\n", len(s.buf), arg)
	case "/level":
		l, err := s.e.core.Catalog.Get(arg)
		if err != nil {
			fmt.Fprintf(s.out, "\033[31m%s\033[0m\n", err)
			return
		}
		s.setLevel(ctx, l)
	case "/next", "/n":
		next := s.e.core.Catalog.Next(s.level.Number)
		if next == nil {
			fmt.Fprintln(s.out, "There are no more levels. The Oracle is proud.")
			return
		}
		s.setLevel(ctx, next)
	case "/levels":
		for _, l := range s.e.core.Catalog.All() {
			marker := " "
			if l.ID == s.level.ID {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %2d  %-28s %s\n", marker, l.Number, l.Title, l.Difficulty.Stars())
		}
	case "/quit", "/exit", "/q":
		fmt.Fprintln(s.out, "Farewell, seeker.")
		s.quit = true
	case "/help":
		fmt.Fprintln(s.out, "Commands:")
		fmt.Fprintln(s.out, "  /run            - Judge the code you have typed")
		fmt.Fprintln(s.out, "  /hint [question] - Ask the Oracle for guidance")
		fmt.Fprintln(s.out, "  /show           - Show the level and your code")
		fmt.Fprintln(s.out, "  /clear          - Discard your code")
		fmt.Fprintln(s.out, "  /starter        - Load the starter code")
		fmt.Fprintln(s.out, "  /load <file>    - Load code from a file")
		fmt.Fprintln(s.out, "  /level <ref>    - Switch level by number or id")
		fmt.Fprintln(s.out, "  /next           - Go to the next level")
		fmt.Fprintln(s.out, "  /levels         - List levels")
		fmt.Fprintln(s.out, "  /quit           - Exit")
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try /help)\n", fields[0])
	}
}

func (s *session) run(ctx context.Context) {
	if len(s.buf) == 0 {
		fmt.Fprintln(s.out, "Nothing to run. Type your code first, or /starter.")
		return
	}
	code := s.code()
	report, err := s.e.core.Evaluator.Evaluate(ctx, code, s.level.FunctionName, s.level.TestCases)
	if err != nil {
		if ctx.Err() == nil {
			fmt.Fprintf(s.out, "\033[31m%s\033[0m\n", err)
		}
		return
	}
	s.lastReport = report
	printReport(s.out, report)

	a, err := storage.NewAttempt(s.level, code, report)
	if err == nil {
		err = s.store.CreateAttempt(ctx, a)
	}
	if err != nil {
		s.e.log.Warn("attempt not recorded", zap.Error(err))
	}

	if report.Status == evaluator.StatusPassed {
		fmt.Fprintf(s.out, "\033[35mThe Oracle smiles. +%d XP, +%d mana.\033[0m", s.level.XPReward, s.level.ManaReward)
		if s.e.core.Catalog.Next(s.level.Number) != nil {
			fmt.Fprint(s.out, " Type /next to continue.")
		}
		fmt.Fprintln(s.out)
	}
}

// hint asks the tutor when one is configured, otherwise reveals the level's
// written hints one at a time.
func (s *session) hint(ctx context.Context, question string) {
	if s.tutor == nil {
		if s.hintsShown >= len(s.level.Hints) {
			fmt.Fprintln(s.out, "The Oracle has no more hints for this level.")
			return
		}
		fmt.Fprintf(s.out, "\033[35mHint %d:\033[0m %s\n", s.hintsShown+1, s.level.Hints[s.hintsShown])
		s.hintsShown++
		return
	}

	fmt.Fprint(s.out, "\n\033[35moracle>\033[0m ")
	var err error
	switch {
	case question != "" && len(s.buf) > 0:
		_, err = s.tutor.Ask(ctx, question+"\n\n```python\n"+s.code()+"```")
	case question != "":
		_, err = s.tutor.Ask(ctx, question)
	default:
		_, err = s.tutor.Hint(ctx, s.code(), s.lastReport)
	}
	fmt.Fprintln(s.out)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(s.out, "\033[31merror: %s\033[0m\n", err)
	}

	if saveErr := s.store.SaveConversation(context.Background(), s.level.ID, s.tutor.History()); saveErr != nil {
		s.e.log.Warn("saving conversation", zap.Error(saveErr))
	}
}
