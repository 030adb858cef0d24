package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"example.com/remindbot/internal/completion"
	"example.com/remindbot/internal/domain"
	"example.com/remindbot/internal/storage/memory"
)

type stubBackend struct {
	reply  string
	err    error
	system string
	user   string
}

func (b *stubBackend) Complete(_ context.Context, system, user string) (string, error) {
	b.system, b.user = system, user
	return b.reply, b.err
}

func newDispatcher(repo *memory.Store, now time.Time, backend completion.Backend) *Dispatcher {
	return NewDispatcher(newService(repo, now), backend, "", time.Second, nil)
}

func TestDispatcherStart(t *testing.T) {
	d := newDispatcher(memory.New(), time.Now(), &stubBackend{})
	for _, cmd := range []string{"/start", "/help", "/start@remind_bot"} {
		if reply := d.Handle(context.Background(), "42", cmd); !strings.Contains(reply, "/add") {
			t.Fatalf("%s: expected help text, got %q", cmd, reply)
		}
	}
}

func TestDispatcherAddThenList(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, tehran)
	d := newDispatcher(repo, now, &stubBackend{})

	reply := d.Handle(ctx, "42", "/add gym | 21:30")
	if reply != "Added #1: gym (due 2026-01-07 21:30)" {
		t.Fatalf("unexpected add reply %q", reply)
	}

	reply = d.Handle(ctx, "42", "/list")
	lines := strings.Split(reply, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one task, got %q", reply)
	}
	if !strings.HasPrefix(lines[1], glyphOpen+" #1 gym — 2026-01-07 21:30") {
		t.Fatalf("unexpected task line %q", lines[1])
	}
	if !strings.Contains(lines[1], "from now") {
		t.Fatalf("expected relative due time, got %q", lines[1])
	}

	if reply := d.Handle(ctx, "7", "/list"); reply != replyEmptyList {
		t.Fatalf("other chats must not see the task, got %q", reply)
	}
}

func TestDispatcherListShowsDoneGlyph(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, tehran)
	d := newDispatcher(repo, now, &stubBackend{})
	d.Handle(ctx, "42", "/add gym | 21:30")
	d.Handle(ctx, "42", "/add read | 2026-01-07 12:00")
	d.Handle(ctx, "42", "/done 2")

	lines := strings.Split(d.Handle(ctx, "42", "/list"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected two tasks, got %v", lines)
	}
	if !strings.HasPrefix(lines[1], glyphOpen+" #1 gym") {
		t.Fatalf("open task should come first, got %q", lines[1])
	}
	if lines[2] != glyphDone+" #2 read — 2026-01-07 12:00" {
		t.Fatalf("unexpected done line %q", lines[2])
	}
}

func TestDispatcherAddUsage_DoesNotInsert(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	d := newDispatcher(repo, time.Date(2026, 1, 7, 10, 0, 0, 0, tehran), &stubBackend{})

	for _, cmd := range []string{
		"/add foo",
		"/add foo | not-a-time",
		"/add | 21:30",
		"/add foo |",
		"/add",
	} {
		if reply := d.Handle(ctx, "42", cmd); reply != replyAddUsage {
			t.Fatalf("%q: expected usage, got %q", cmd, reply)
		}
	}
	items, _ := repo.ListOpenFirst(ctx, "42", 10)
	if len(items) != 0 {
		t.Fatalf("expected no rows, got %d", len(items))
	}
}

func TestDispatcherAdd_SplitsOnFirstPipe(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	d := newDispatcher(repo, time.Date(2026, 1, 7, 10, 0, 0, 0, tehran), &stubBackend{})
	// Everything after the first pipe is the time text, so a second pipe
	// makes it malformed.
	if reply := d.Handle(ctx, "42", "/add a | b | 21:30"); reply != replyAddUsage {
		t.Fatalf("expected usage, got %q", reply)
	}
}

func TestDispatcherDone_ForeignIDStillConfirms(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, tehran)
	id, _ := repo.Insert(ctx, "owner", "a", now, now)
	id2, _ := repo.Insert(ctx, "owner", "b", now, now)
	id3, _ := repo.Insert(ctx, "owner", "c", now, now)
	d := newDispatcher(repo, now, &stubBackend{})

	reply := d.Handle(ctx, "intruder", "/done 3")
	if reply != "Marked #3 as done." {
		t.Fatalf("unexpected reply %q", reply)
	}
	for _, tid := range []int64{id, id2, id3} {
		task, _ := repo.GetByID(ctx, tid)
		if task.Done {
			t.Fatalf("task #%d must stay open", tid)
		}
	}
}

func TestDispatcherDoneUsage(t *testing.T) {
	d := newDispatcher(memory.New(), time.Now(), &stubBackend{})
	for _, cmd := range []string{"/done", "/done abc", "/done 1.5", "/done -3"} {
		if reply := d.Handle(context.Background(), "42", cmd); reply != replyDoneUsage {
			t.Fatalf("%q: expected usage, got %q", cmd, reply)
		}
	}
}

func TestDispatcherCommandsAreCaseSensitive(t *testing.T) {
	backend := &stubBackend{reply: "model reply"}
	d := newDispatcher(memory.New(), time.Now(), backend)
	if reply := d.Handle(context.Background(), "42", "/LIST"); reply != "model reply" {
		t.Fatalf("expected /LIST to go to the backend, got %q", reply)
	}
}

func TestDispatcherFreeText(t *testing.T) {
	backend := &stubBackend{reply: "hello back"}
	d := newDispatcher(memory.New(), time.Now(), backend)

	if reply := d.Handle(context.Background(), "42", "hello"); reply != "hello back" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if backend.user != "hello" || backend.system != DefaultSystemStyle {
		t.Fatalf("backend got system=%q user=%q", backend.system, backend.user)
	}
}

func TestDispatcherFreeText_Fallbacks(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&completion.Error{Kind: completion.KindRateLimited, StatusCode: 429}, replyRateLimited},
		{&completion.Error{Kind: completion.KindUnavailable, StatusCode: 503}, replyBackendError},
		{&completion.Error{Kind: completion.KindMalformedResponse}, replyBackendError},
		{errors.New("boom"), replyBackendError},
	}
	for _, tc := range cases {
		d := newDispatcher(memory.New(), time.Now(), &stubBackend{err: tc.err})
		if reply := d.Handle(context.Background(), "42", "hi"); reply != tc.want {
			t.Fatalf("%v: expected %q, got %q", tc.err, tc.want, reply)
		}
	}
}

type brokenRepo struct {
	*memory.Store
}

func (brokenRepo) Insert(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func (brokenRepo) ListOpenFirst(context.Context, string, int) ([]domain.Task, error) {
	return nil, errors.New("disk full")
}

func (brokenRepo) MarkDone(context.Context, string, int64) (bool, error) {
	return false, errors.New("disk full")
}

func TestDispatcherStoreFailure(t *testing.T) {
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, tehran)
	svc := NewTaskService(brokenRepo{memory.New()}, newService(memory.New(), now).parser, 0).
		WithClock(func() time.Time { return now })
	d := NewDispatcher(svc, &stubBackend{}, "", time.Second, nil)
	for _, cmd := range []string{"/add gym | 21:30", "/list", "/done 1"} {
		if reply := d.Handle(context.Background(), "42", cmd); reply != replyStoreFailed {
			t.Fatalf("%q: expected store failure reply, got %q", cmd, reply)
		}
	}
}

func TestDispatcherList_StaysUnderMessageLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, tehran)
	d := newDispatcher(repo, now, &stubBackend{})
	title := "buy groceries " + strings.Repeat("and more groceries ", 5)
	for range DefaultListLimit {
		if reply := d.Handle(ctx, "42", "/add "+title+" | 2026-02-01 10:00"); !strings.HasPrefix(reply, "Added #") {
			t.Fatalf("add failed: %q", reply)
		}
	}

	reply := d.Handle(ctx, "42", "/list")
	if n := utf8.RuneCountInString(reply); n > maxReplyRunes {
		t.Fatalf("list reply is %d runes, limit %d", n, maxReplyRunes)
	}
	lines := strings.Split(reply, "\n")
	last := lines[len(lines)-1]
	shown := len(lines) - 2
	if want := fmt.Sprintf("…and %d more", DefaultListLimit-shown); last != want {
		t.Fatalf("expected overflow line %q, got %q", want, last)
	}
}

func TestDispatcherAdd_RejectsOverlongTitle(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	d := newDispatcher(repo, time.Date(2026, 1, 7, 10, 0, 0, 0, tehran), &stubBackend{})
	title := strings.Repeat("x", MaxTitleRunes+1)
	if reply := d.Handle(ctx, "42", "/add "+title+" | 21:30"); reply != replyTitleTooLong {
		t.Fatalf("expected too-long reply, got %q", reply)
	}
	if items, _ := repo.ListOpenFirst(ctx, "42", 10); len(items) != 0 {
		t.Fatalf("expected no rows, got %d", len(items))
	}
	if reply := d.Handle(ctx, "42", "/add "+strings.Repeat("x", MaxTitleRunes)+" | 21:30"); !strings.HasPrefix(reply, "Added #1") {
		t.Fatalf("title at the limit must be accepted, got %q", reply)
	}
}

func TestDispatcherCommandsSplitOnAnyWhitespace(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	backend := &stubBackend{reply: "model reply"}
	d := newDispatcher(repo, time.Date(2026, 1, 7, 10, 0, 0, 0, tehran), backend)

	if reply := d.Handle(ctx, "42", "/add\tgym | 21:30"); reply != "Added #1: gym (due 2026-01-07 21:30)" {
		t.Fatalf("unexpected add reply %q", reply)
	}
	if reply := d.Handle(ctx, "42", "/done\n1"); reply != "Marked #1 as done." {
		t.Fatalf("unexpected done reply %q", reply)
	}
	if backend.user != "" {
		t.Fatalf("commands must not reach the backend, got %q", backend.user)
	}
	if task, _ := repo.GetByID(ctx, 1); !task.Done {
		t.Fatalf("task should be done")
	}
}
