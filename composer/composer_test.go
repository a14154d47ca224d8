package composer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"flexmailer/internal/headers"
	"flexmailer/internal/logging"
	"flexmailer/internal/metrics"
	"flexmailer/mailing"
)

func testMessageID(tag string, jobID, queueID int64, hash string) string {
	return headers.VERPMessageID("civimail", "acme.test", ".")(tag, jobID, queueID, hash)
}

func acmeMailing(replyTo *string) *mailing.Mailing {
	r := mailing.NewTableResolver()
	r.Add(7, "abc123", "u@ex.test", mailing.Addressing{Unsubscribe: "u/unsub/7/abc123", Reply: "reply@acme.test"})
	r.Add(8, "def456", "v@ex.test", mailing.Addressing{Unsubscribe: "u/unsub/8/def456", Reply: "reply8@acme.test"})
	r.Add(9, "0a1b2c", "w@ex.test", mailing.Addressing{Unsubscribe: "u/unsub/9/0a1b2c", Reply: "reply9@acme.test"})
	return &mailing.Mailing{
		FromName:     "Acme News",
		FromEmail:    "news@acme.test",
		ReplyToEmail: replyTo,
		Addressing:   r,
	}
}

func newComposer() *Composer {
	return New(testMessageID, logging.Discard())
}

func pairs(h *headers.Map) [][2]string {
	var out [][2]string
	h.Each(func(k, v string) { out = append(out, [2]string{k, v}) })
	return out
}

func TestComposeScenario(t *testing.T) {
	metrics.ResetForTests()
	empty := ""
	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test", Headers: headers.New()}

	report := newComposer().Compose(context.Background(), acmeMailing(&empty), mailing.Job{ID: 42}, []*mailing.Task{task})
	if err := report.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Composed != 1 {
		t.Fatalf("expected 1 composed task, got %d", report.Composed)
	}

	want := [][2]string{
		{"List-Unsubscribe", "<mailto:u/unsub/7/abc123>"},
		{"Message-ID", "<civimailm.42.7.abc123@acme.test>"},
		{"Precedence", "bulk"},
		{"job_id", "42"},
		{"From", `"Acme News" <news@acme.test>`},
		{"Reply-To", "reply@acme.test"},
	}
	if got := pairs(task.Headers); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected headers %v, got %v", want, got)
	}
	if metrics.TasksComposed.Value() != 1 || metrics.ResolutionFailures.Value() != 0 {
		t.Fatalf("unexpected counters composed=%d failures=%d", metrics.TasksComposed.Value(), metrics.ResolutionFailures.Value())
	}
}

func TestComposeNilHeaders(t *testing.T) {
	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
	newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, []*mailing.Task{task})
	if task.Headers.Len() != 6 {
		t.Fatalf("expected exactly six headers, got %v", task.Headers.Keys())
	}
}

func TestComposeExistingWins(t *testing.T) {
	existing := map[string]string{
		"List-Unsubscribe": "<mailto:custom@acme.test>",
		"Message-ID":       "<fixed@acme.test>",
		"Precedence":       "list",
		"job_id":           "1",
		"From":             "Custom <x@y.test>",
		"Reply-To":         "desk@acme.test",
	}

	for key, value := range existing {
		key, value := key, value
		t.Run(key, func(t *testing.T) {
			task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test", Headers: headers.New(key, value)}
			newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, []*mailing.Task{task})

			if got, _ := task.Headers.Get(key); got != value {
				t.Fatalf("expected pre-existing %s=%q to be kept, got %q", key, value, got)
			}
			if task.Headers.Len() != 6 {
				t.Fatalf("expected six headers, got %v", task.Headers.Keys())
			}
		})
	}
}

func TestComposeCustomFromLeavesOthers(t *testing.T) {
	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test", Headers: headers.New("From", "Custom <x@y.test>")}
	newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, []*mailing.Task{task})

	want := [][2]string{
		{"List-Unsubscribe", "<mailto:u/unsub/7/abc123>"},
		{"Message-ID", "<civimailm.42.7.abc123@acme.test>"},
		{"Precedence", "bulk"},
		{"job_id", "42"},
		{"From", "Custom <x@y.test>"},
		{"Reply-To", "reply@acme.test"},
	}
	if got := pairs(task.Headers); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected headers %v, got %v", want, got)
	}
}

func TestComposeKeepsExtraHeaders(t *testing.T) {
	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test", Headers: headers.New("X-CiviMail-Bounce", "b.7@acme.test")}
	newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, []*mailing.Task{task})

	keys := task.Headers.Keys()
	if len(keys) != 7 || keys[6] != "X-CiviMail-Bounce" {
		t.Fatalf("expected extra header appended after computed ones, got %v", keys)
	}
}

func TestComposeReplyToOverride(t *testing.T) {
	desk := "desk@acme.test"
	blank := ""
	padded := " desk@acme.test "
	spaces := "   "

	tests := []struct {
		name    string
		replyTo *string
		want    string
	}{
		{"unset uses resolved reply", nil, "reply@acme.test"},
		{"blank uses resolved reply", &blank, "reply@acme.test"},
		{"set overrides", &desk, "desk@acme.test"},
		{"padded overrides trimmed", &padded, "desk@acme.test"},
		{"whitespace uses resolved reply", &spaces, "reply@acme.test"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
			newComposer().Compose(context.Background(), acmeMailing(tc.replyTo), mailing.Job{ID: 42}, []*mailing.Task{task})
			if got, _ := task.Headers.Get("Reply-To"); got != tc.want {
				t.Fatalf("expected Reply-To %q, got %q", tc.want, got)
			}
		})
	}
}

func TestComposeReplyToEqualToFrom(t *testing.T) {
	// Only a reply address spelled exactly like the formatted From skips the override.
	sameAsFrom := `"Acme News" <news@acme.test>`
	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
	newComposer().Compose(context.Background(), acmeMailing(&sameAsFrom), mailing.Job{ID: 42}, []*mailing.Task{task})
	if got, _ := task.Headers.Get("Reply-To"); got != "reply@acme.test" {
		t.Fatalf("expected resolved reply address, got %q", got)
	}

	// The comparison runs on the trimmed value.
	padded := "  " + sameAsFrom + " "
	task = &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
	newComposer().Compose(context.Background(), acmeMailing(&padded), mailing.Job{ID: 42}, []*mailing.Task{task})
	if got, _ := task.Headers.Get("Reply-To"); got != "reply@acme.test" {
		t.Fatalf("expected resolved reply address for padded From, got %q", got)
	}

	bare := "news@acme.test"
	task = &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
	newComposer().Compose(context.Background(), acmeMailing(&bare), mailing.Job{ID: 42}, []*mailing.Task{task})
	if got, _ := task.Headers.Get("Reply-To"); got != "news@acme.test" {
		t.Fatalf("expected bare from address to override, got %q", got)
	}
}

func TestComposeBatchInvariants(t *testing.T) {
	tasks := []*mailing.Task{
		{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"},
		{EventQueueID: 8, Hash: "def456", Address: "v@ex.test", Headers: headers.New("Precedence", "junk")},
		{EventQueueID: 9, Hash: "0a1b2c", Address: "w@ex.test"},
	}
	newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, tasks)

	for i, task := range tasks {
		if got, _ := task.Headers.Get("job_id"); got != "42" {
			t.Fatalf("task %d: expected job_id 42, got %q", i, got)
		}
		prec, _ := task.Headers.Get("Precedence")
		if i != 1 && prec != "bulk" {
			t.Fatalf("task %d: expected Precedence bulk, got %q", i, prec)
		}
	}
	if prec, _ := tasks[1].Headers.Get("Precedence"); prec != "junk" {
		t.Fatalf("expected pre-existing Precedence kept, got %q", prec)
	}
}

func TestComposeResolutionFailure(t *testing.T) {
	metrics.ResetForTests()
	tasks := []*mailing.Task{
		{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"},
		{EventQueueID: 8, Hash: "not/a/hash", Address: "v@ex.test", Headers: headers.New("X-Keep", "1")},
		{EventQueueID: 9, Hash: "0a1b2c", Address: "w@ex.test"},
	}

	report := newComposer().Compose(context.Background(), acmeMailing(nil), mailing.Job{ID: 42}, tasks)
	if report.Composed != 2 {
		t.Fatalf("expected 2 composed tasks, got %d", report.Composed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	failure := report.Failures[0]
	if failure.Lookup.QueueID != 8 || failure.Lookup.JobID != 42 {
		t.Fatalf("unexpected failing task %+v", failure.Lookup)
	}
	if !errors.Is(report.Err(), mailing.ErrResolution) || !errors.Is(report.Err(), mailing.ErrMalformedHash) {
		t.Fatalf("expected resolution error, got %v", report.Err())
	}
	if got := tasks[1].Headers.Keys(); !reflect.DeepEqual(got, []string{"X-Keep"}) {
		t.Fatalf("expected failed task headers untouched, got %v", got)
	}
	if tasks[1].Headers.Has("List-Unsubscribe") || tasks[1].Headers.Has("Reply-To") {
		t.Fatalf("failed task must not receive placeholder headers")
	}
	if metrics.ResolutionFailures.Value() != 1 {
		t.Fatalf("expected ResolutionFailures=1, got %d", metrics.ResolutionFailures.Value())
	}
}

func TestComposeResolverError(t *testing.T) {
	boom := errors.New("database unavailable")
	m := acmeMailing(nil)
	m.Addressing = mailing.ResolverFunc(func(ctx context.Context, l mailing.Lookup) (mailing.Addressing, error) {
		return mailing.Addressing{}, boom
	})

	report := newComposer().Compose(context.Background(), m, mailing.Job{ID: 1}, []*mailing.Task{{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}})
	if len(report.Failures) != 1 || !errors.Is(report.Failures[0], boom) {
		t.Fatalf("expected wrapped resolver error, got %v", report.Err())
	}
}

func TestComposeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := &mailing.Task{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}
	report := newComposer().Compose(ctx, acmeMailing(nil), mailing.Job{ID: 42}, []*mailing.Task{task})
	if !errors.Is(report.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", report.Err())
	}
	if report.Composed != 0 || task.Headers != nil {
		t.Fatalf("expected no task to be composed after cancellation")
	}
}

func TestComposeDoesNotMutateMailing(t *testing.T) {
	desk := "desk@acme.test"
	m := acmeMailing(&desk)
	before := *m
	newComposer().Compose(context.Background(), m, mailing.Job{ID: 42}, []*mailing.Task{{EventQueueID: 7, Hash: "abc123", Address: "u@ex.test"}})
	if m.FromName != before.FromName || m.FromEmail != before.FromEmail || *m.ReplyToEmail != desk {
		t.Fatalf("mailing was modified")
	}
}
