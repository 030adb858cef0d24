package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"example.com/remindbot/internal/completion"
	"example.com/remindbot/internal/domain"
	"example.com/remindbot/internal/duetime"

	"github.com/dustin/go-humanize"
)

var ErrUsage = errors.New("usage")

const (
	DefaultSystemStyle = "You are a friendly, concise personal assistant. Answer in the user's language."

	replyAddUsage     = "Usage: /add <title> | <YYYY-MM-DD HH:MM or HH:MM>"
	replyDoneUsage    = "Usage: /done <id>"
	replyEmptyList    = "No tasks yet. Add one with /add <title> | <time>."
	replyTitleTooLong = "That title is too long, keep it under 256 characters."
	replyStoreFailed  = "Something went wrong, please try again later."
	replyRateLimited  = "I'm getting too many requests right now, try again in a minute."
	replyBackendError = "I can't answer right now, please try again later."

	glyphOpen = "⬜"
	glyphDone = "✅"

	// maxReplyRunes keeps replies under Telegram's 4096 character limit.
	maxReplyRunes = 4000
	// overflowRunes is kept free for the "…and N more" line.
	overflowRunes = 32
)

type Dispatcher struct {
	tasks   *TaskService
	backend completion.Backend
	system  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewDispatcher(tasks *TaskService, backend completion.Backend, system string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if system == "" {
		system = DefaultSystemStyle
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		tasks:   tasks,
		backend: backend,
		system:  system,
		timeout: timeout,
		logger:  logger,
	}
}

// Handle interprets one incoming message and returns the single reply to
// send back. It never fails: every error ends up as a user-facing sentence.
func (d *Dispatcher) Handle(ctx context.Context, owner, text string) string {
	text = strings.TrimSpace(text)
	command, args := parseCommand(text)
	log := d.logger.With("owner", owner, "command", command)

	switch command {
	case "start", "help":
		return helpText()
	case "add":
		title, timeText, err := parseAddArgs(args)
		if err != nil {
			return replyAddUsage
		}
		task, err := d.tasks.Add(ctx, owner, title, timeText)
		if err != nil {
			if errors.Is(err, duetime.ErrMalformedTime) || errors.Is(err, ErrInvalidText) {
				return replyAddUsage
			}
			if errors.Is(err, ErrTitleTooLong) {
				return replyTitleTooLong
			}
			log.Error("add task failed", "error", err)
			return replyStoreFailed
		}
		log.Info("task added", "task_id", task.ID, "due_at", task.DueAt)
		return fmt.Sprintf("Added #%d: %s (due %s)", task.ID, task.Title, formatTime(task.DueAt))
	case "list":
		items, err := d.tasks.List(ctx, owner)
		if err != nil {
			log.Error("list tasks failed", "error", err)
			return replyStoreFailed
		}
		return formatTaskList(items, d.tasks.now())
	case "done":
		id, err := parseIDArg(args)
		if err != nil {
			return replyDoneUsage
		}
		changed, err := d.tasks.Done(ctx, owner, id)
		if err != nil {
			log.Error("mark done failed", "task_id", id, "error", err)
			return replyStoreFailed
		}
		log.Info("done requested", "task_id", id, "changed", changed)
		return fmt.Sprintf("Marked #%d as done.", id)
	default:
		return d.complete(ctx, log, text)
	}
}

func (d *Dispatcher) complete(ctx context.Context, log *slog.Logger, text string) string {
	if d.backend == nil || text == "" {
		return helpText()
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	reply, err := d.backend.Complete(ctx, d.system, text)
	if err != nil {
		kind := completion.KindOf(err)
		log.Warn("completion failed", "kind", kind.String(), "error", err)
		if kind == completion.KindRateLimited {
			return replyRateLimited
		}
		return replyBackendError
	}
	return reply
}

// parseCommand splits "/cmd@bot args" into ("cmd", "args"). Anything not
// starting with a slash yields an empty command.
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args := text[1:], ""
	if idx := strings.IndexFunc(cmd, unicode.IsSpace); idx >= 0 {
		cmd, args = cmd[:idx], strings.TrimSpace(cmd[idx:])
	}
	if idx := strings.Index(cmd, "@"); idx >= 0 {
		cmd = cmd[:idx]
	}
	return cmd, args
}

func parseAddArgs(args string) (string, string, error) {
	title, timeText, ok := strings.Cut(args, "|")
	if !ok {
		return "", "", ErrUsage
	}
	title = strings.TrimSpace(title)
	timeText = strings.TrimSpace(timeText)
	if title == "" || timeText == "" {
		return "", "", ErrUsage
	}
	return title, timeText, nil
}

func parseIDArg(args string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUsage
	}
	return id, nil
}

// formatTaskList renders one line per task. Lines that would push the reply
// past maxReplyRunes are replaced by a count of the hidden tasks.
func formatTaskList(items []domain.Task, now time.Time) string {
	if len(items) == 0 {
		return replyEmptyList
	}
	var b strings.Builder
	b.WriteString("Your tasks:")
	size := utf8.RuneCountInString(b.String())
	for i, t := range items {
		glyph := glyphOpen
		if t.Done {
			glyph = glyphDone
		}
		line := fmt.Sprintf("%s #%d %s — %s", glyph, t.ID, t.Title, formatTime(t.DueAt))
		if !t.Done {
			line += " (" + humanize.RelTime(t.DueAt, now, "ago", "from now") + ")"
		}
		n := utf8.RuneCountInString(line) + 1
		if size+n > maxReplyRunes-overflowRunes {
			fmt.Fprintf(&b, "\n…and %d more", len(items)-i)
			break
		}
		b.WriteString("\n")
		b.WriteString(line)
		size += n
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.Format(duetime.DateTimeLayout)
}

func helpText() string {
	return strings.Join([]string{
		"Hi! I keep track of your tasks and remind you 3h, 1h and 5m before they are due, and when they are due.",
		"",
		"Commands:",
		"/add <title> | <YYYY-MM-DD HH:MM> — add a task",
		"/add <title> | <HH:MM> — today, or tomorrow if that time has passed",
		"/list — your tasks",
		"/done <id> — mark a task as done",
		"",
		"Anything else is answered by the assistant.",
	}, "\n")
}
