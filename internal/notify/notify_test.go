package notify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/grievance-portal/internal/config"
	"github.com/iliyamo/grievance-portal/internal/queue"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func recipients(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.To)
	}
	return out
}

func TestRender_Recipients(t *testing.T) {
	base := queue.Event{
		GrievanceID: 12, Title: "Broken projector",
		StudentEmail: "stu@uni.edu", StudentName: "Sam",
		AdminEmail: "admin@uni.edu", HandlerEmail: "staff@uni.edu", HandlerName: "Pat",
	}
	tests := []struct {
		kind queue.Kind
		want []string
	}{
		{queue.KindCreated, []string{"admin@uni.edu", "stu@uni.edu"}},
		{queue.KindStatusChanged, []string{"stu@uni.edu"}},
		{queue.KindAssigned, []string{"staff@uni.edu"}},
		{queue.KindResolved, []string{"stu@uni.edu"}},
		{queue.Kind("unknown"), []string{}},
	}
	r := NewRenderer(false)
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ev := base
			ev.Kind = tt.kind
			assert.Equal(t, tt.want, recipients(r.Render(ev)))
		})
	}
}

func TestRender_Content(t *testing.T) {
	r := NewRenderer(false)

	msgs := r.Render(queue.Event{
		Kind: queue.KindStatusChanged, GrievanceID: 3, Title: "Wifi",
		StudentEmail: "s@x.io", StudentName: "Sam", OldStatus: "submitted", NewStatus: "under_review",
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Grievance Status Update: Wifi", msgs[0].Subject)
	assert.Contains(t, msgs[0].Text, "Hello Sam,")
	assert.Contains(t, msgs[0].Text, "Previous Status: submitted")
	assert.Contains(t, msgs[0].Text, "New Status: under_review")
	assert.Empty(t, msgs[0].HTML)

	msgs = r.Render(queue.Event{
		Kind: queue.KindResolved, GrievanceID: 3, Title: "Wifi",
		StudentEmail: "s@x.io", StudentName: "Sam", Resolution: "Router replaced",
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Grievance Resolved: Wifi", msgs[0].Subject)
	assert.Contains(t, msgs[0].Text, "Resolution: Router replaced")
}

func TestRender_SkipsMissingAdmin(t *testing.T) {
	msgs := NewRenderer(false).Render(queue.Event{Kind: queue.KindCreated, Title: "t", StudentEmail: "s@x.io"})
	assert.Equal(t, []string{"s@x.io"}, recipients(msgs))
}

func TestRender_HTML(t *testing.T) {
	msgs := NewRenderer(true).Render(queue.Event{
		Kind: queue.KindAssigned, GrievanceID: 8, Title: "Noise",
		HandlerEmail: "h@x.io", HandlerName: "Pat",
	})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTML, "<p>Hello Pat,</p>")
	assert.Contains(t, msgs[0].HTML, "<br")
	assert.Contains(t, msgs[0].Text, "Grievance ID: 8")
}

func TestFileSink_AppendsOneLinePerMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "outbox.log")
	s := NewFileSink(path, discard())
	s.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	require.True(t, s.Send(context.Background(), Message{To: "a@x.io", Subject: "Hi", Text: "line one\nline two\n"}))
	require.True(t, s.Send(context.Background(), Message{To: "b@x.io", Subject: "Yo", Text: "x"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `[2026-05-01T09:00:00Z] Email | to=a@x.io | subject="Hi" | body="line one\nline two"`, lines[0])
	assert.Contains(t, lines[1], "to=b@x.io")
}

func TestFileSink_FailureReportsFalse(t *testing.T) {
	dir := t.TempDir()
	// a directory where the file should be
	path := filepath.Join(dir, "outbox.log")
	require.NoError(t, os.Mkdir(path, 0o755))
	assert.False(t, NewFileSink(path, discard()).Send(context.Background(), Message{To: "a@x.io"}))
}

func TestSMTPSink_UnreachableReportsFalse(t *testing.T) {
	s, err := NewSMTPSink(config.MailConfig{Host: "127.0.0.1", Port: 1, From: "noreply@x.io"}, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.False(t, s.Send(ctx, Message{To: "a@x.io", Subject: "s", Text: "b"}))
}

func TestSMTPSink_InvalidRecipient(t *testing.T) {
	s, err := NewSMTPSink(config.MailConfig{Host: "127.0.0.1", Port: 1, From: "noreply@x.io"}, discard())
	require.NoError(t, err)
	assert.False(t, s.Send(context.Background(), Message{To: "not an address"}))
}

func TestNewSink_PicksOutboxWithoutHost(t *testing.T) {
	s, err := NewSink(config.MailConfig{Outbox: filepath.Join(t.TempDir(), "o.log")}, discard())
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, s)
}

type recordingSink struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (s *recordingSink) Send(_ context.Context, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[m.To] {
		return false
	}
	s.sent = append(s.sent, m)
	return true
}

func TestDispatcher_DeliversAndSwallowsFailures(t *testing.T) {
	sink := &recordingSink{fail: map[string]bool{"admin@x.io": true}}
	d := NewDispatcher(NewRenderer(false), sink, 2, 8, discard())
	d.Start(context.Background())

	d.Dispatch(queue.Event{Kind: queue.KindCreated, GrievanceID: 1, Title: "t",
		StudentEmail: "s@x.io", StudentName: "S", AdminEmail: "admin@x.io"})
	d.Dispatch(queue.Event{Kind: queue.KindResolved, GrievanceID: 1, Title: "t",
		StudentEmail: "s@x.io", StudentName: "S", Resolution: "ok"})
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{"s@x.io", "s@x.io"}, recipients(sink.sent))
}

func TestDispatcher_DropsWhenClosed(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(NewRenderer(false), sink, 1, 1, discard())
	d.Start(context.Background())
	require.NoError(t, d.Close(context.Background()))

	assert.NotPanics(t, func() {
		d.Dispatch(queue.Event{Kind: queue.KindResolved, StudentEmail: "s@x.io"})
	})
	assert.Empty(t, sink.sent)
}
