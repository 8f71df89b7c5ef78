package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/runger/sheetql/internal/pipeline"
	"github.com/runger/sheetql/internal/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	hintStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// localUser keys the single session of the terminal front-end.
const localUser = "local"

// REPL drives a line-oriented conversation: file selection, action
// choice, free-text turns and the /report, /end and /cancel commands.
type REPL struct {
	in       *bufio.Scanner
	out      io.Writer
	pipeline *pipeline.Pipeline
	sessions *session.Store
	source   FileSource
	opts     session.TurnOptions
}

func New(in io.Reader, out io.Writer, p *pipeline.Pipeline, sessions *session.Store, source FileSource, opts session.TurnOptions) *REPL {
	return &REPL{
		in:       bufio.NewScanner(in),
		out:      out,
		pipeline: p,
		sessions: sessions,
		source:   source,
		opts:     opts,
	}
}

// Run drives the conversation until input ends, /exit or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, titleStyle.Render("sheetql — ask your spreadsheets"))
	fmt.Fprintln(r.out, hintStyle.Render("Commands: /report  /end  /cancel  /exit"))

	sess := r.sessions.Get(localUser)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if sess.State == session.StateIdle || sess.File == nil {
			var err error
			if sess.File == nil {
				err = r.selectFile(sess)
			} else {
				// The file survives /end, /cancel and table runs; only
				// the action needs re-choosing.
				err = r.chooseAction(sess)
			}
			if err != nil {
				return err
			}
			continue
		}

		line, ok := r.readLine(r.promptFor(sess))
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}

		switch line {
		case "/exit":
			return nil
		case "/cancel":
			sess.Cancel()
			fmt.Fprintln(r.out, hintStyle.Render("Cancelled. The file stays selected."))
			continue
		case "/end":
			sess.EndChat()
			fmt.Fprintln(r.out, hintStyle.Render("Chat ended. The file stays selected for next time."))
			continue
		case "/report":
			r.report(ctx, sess)
			continue
		}

		out, err := sess.Dispatch(ctx, r.pipeline, line, r.opts)
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("Something went wrong processing that request. Try rephrasing it."))
			continue
		}
		r.render(out)
	}
}

// selectFile walks the user through file and action selection,
// arming the session for the first query.
func (r *REPL) selectFile(sess *session.Session) error {
	files, err := r.source.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no spreadsheet files available")
	}

	fmt.Fprintln(r.out, titleStyle.Render("Available files:"))
	for i, f := range files {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, f.Name)
	}

	file, ok := r.pickNumber("File number", len(files))
	if !ok {
		return io.EOF
	}

	fmt.Fprintln(r.out, titleStyle.Render("What do you want to do?"))
	fmt.Fprintln(r.out, "  1. Ask a question about the data")
	fmt.Fprintln(r.out, "  2. Build a table from the data")

	action, ok := r.pickNumber("Action number", 2)
	if !ok {
		return io.EOF
	}

	mode := session.ActionQuestion
	if action == 2 {
		mode = session.ActionTable
	}
	sess.SelectFile(files[file-1], mode)
	fmt.Fprintln(r.out, hintStyle.Render("Selected "+files[file-1].Name+". Type your request."))
	return nil
}

// chooseAction re-arms an idle session that still has a file: the
// action menu alone, with an escape hatch back to file selection.
func (r *REPL) chooseAction(sess *session.Session) error {
	fmt.Fprintln(r.out, titleStyle.Render("What do you want to do?"))
	fmt.Fprintln(r.out, "  1. Ask a question about the data")
	fmt.Fprintln(r.out, "  2. Build a table from the data")
	fmt.Fprintln(r.out, "  3. Pick another file")

	n, ok := r.pickNumber("Action number", 3)
	if !ok {
		return io.EOF
	}
	switch n {
	case 1:
		sess.ChooseAction(session.ActionQuestion)
		fmt.Fprintln(r.out, hintStyle.Render("Type your question."))
	case 2:
		sess.ChooseAction(session.ActionTable)
		fmt.Fprintln(r.out, hintStyle.Render("Describe the table to build."))
	case 3:
		sess.File = nil
	}
	return nil
}

func (r *REPL) report(ctx context.Context, sess *session.Session) {
	opts := r.opts
	opts.OutputPath = fmt.Sprintf("report_%s.xlsx", uuid.NewString()[:8])

	out, err := sess.Report(ctx, r.pipeline, opts)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render("Could not build the report. Try again after a few more turns."))
		return
	}
	r.render(out)
}

func (r *REPL) render(out *pipeline.Outcome) {
	fmt.Fprintln(r.out, answerStyle.Render(pipeline.UserFacing(out.Text)))
	if out.ArtifactPath != "" {
		fmt.Fprintln(r.out, hintStyle.Render("Saved: "+out.ArtifactPath))
	}
	if out.BudgetExceeded {
		fmt.Fprintln(r.out, hintStyle.Render("The time budget ran out; this is a partial result."))
	}
}

func (r *REPL) promptFor(sess *session.Session) string {
	if sess.State == session.StateWaitingQuery {
		return "query> "
	}
	return "chat> "
}

func (r *REPL) readLine(prompt string) (string, bool) {
	fmt.Fprint(r.out, promptStyle.Render(prompt))
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

// pickNumber reads a 1-based selection until a valid one arrives.
func (r *REPL) pickNumber(prompt string, max int) (int, bool) {
	for {
		line, ok := r.readLine(prompt + ": ")
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > max {
			fmt.Fprintln(r.out, errorStyle.Render(fmt.Sprintf("Enter a number between 1 and %d.", max)))
			continue
		}
		return n, true
	}
}
