package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/config"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

// --- stubs ---

type sentReply struct {
	channel, roomID, participantID, text string
}

type stubSender struct {
	mu       sync.Mutex
	replies  []sentReply
	forwards chan []bus.ForwardPart
}

func newStubSender() *stubSender {
	return &stubSender{forwards: make(chan []bus.ForwardPart, 4)}
}

func (s *stubSender) SendReply(channel, roomID, participantID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, sentReply{channel, roomID, participantID, text})
}

func (s *stubSender) SendForward(channel, roomID, participantID string, parts []bus.ForwardPart) {
	s.forwards <- parts
}

func (s *stubSender) replyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

func (s *stubSender) lastReply() sentReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return sentReply{}
	}
	return s.replies[len(s.replies)-1]
}

func (s *stubSender) waitForward(t *testing.T) []bus.ForwardPart {
	t.Helper()
	select {
	case parts := <-s.forwards:
		return parts
	case <-time.After(2 * time.Second):
		t.Fatal("no forward bundle delivered")
		return nil
	}
}

type modelCall struct {
	requestID string
	messages  []providers.Message
	opts      model.CallOptions
}

type stubModels struct {
	mu    sync.Mutex
	calls []modelCall
}

func (m *stubModels) Call(requestID string, messages []providers.Message, opts model.CallOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, modelCall{requestID, messages, opts})
}

func (m *stubModels) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *stubModels) last() modelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return modelCall{}
	}
	return m.calls[len(m.calls)-1]
}

type fetchCall struct {
	requestID, channel, roomID string
	count                      int
}

type stubRooms struct {
	mu        sync.Mutex
	notices   []fetchCall
	histories []fetchCall
}

func (r *stubRooms) FetchNotice(requestID, channel, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, fetchCall{requestID: requestID, channel: channel, roomID: roomID})
}

func (r *stubRooms) FetchHistory(requestID, channel, roomID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories = append(r.histories, fetchCall{requestID: requestID, channel: channel, roomID: roomID, count: count})
}

// --- fixture ---

type fixture struct {
	t      *testing.T
	orch   *Orchestrator
	sender *stubSender
	models *stubModels
	rooms  *stubRooms
	clock  time.Time
}

func newFixture(t *testing.T, mutate func(*config.OrchestratorConfig)) *fixture {
	cfg := config.Default().Orchestrator
	cfg.RoomContextEnabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		t:      t,
		sender: newStubSender(),
		models: &stubModels{},
		rooms:  &stubRooms{},
		clock:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	seq := 0
	f.orch = New(Options{
		Config: cfg,
		Sender: f.sender,
		Models: f.models,
		Rooms:  f.rooms,
		Now:    func() time.Time { return f.clock },
		NewID: func() string {
			seq++
			return fmt.Sprintf("req-%d", seq)
		},
	})
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) message(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "onebot",
		SenderID: "100001",
		RoomID:   "roomA",
		Content:  text,
	}
}

func (f *fixture) mention(text string) bus.InboundMessage {
	msg := f.message(text)
	msg.MentionsAssistant = true
	return msg
}

// engage drives the standard opening: one batched message, a merge-window
// tick, and a YES triage. Returns after the first reply call is issued.
func (f *fixture) engage(text string) {
	f.t.Helper()
	f.orch.HandleMessage(f.message(text))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 1 {
		f.t.Fatalf("expected 1 triage call, got %d", f.models.count())
	}
	f.orch.HandleModelResult(bus.ModelResult{
		RequestID: f.models.last().requestID,
		Success:   true,
		Content:   `{"decision":"yes","confidence":0.9,"reason":"needs help"}`,
	})
	if f.models.count() != 2 {
		f.t.Fatalf("expected reply call after triage yes, got %d calls", f.models.count())
	}
}

func (f *fixture) resolveLastModel(content string) {
	f.t.Helper()
	f.orch.HandleModelResult(bus.ModelResult{
		RequestID: f.models.last().requestID,
		Success:   true,
		Content:   content,
	})
}

// --- batching and triage ---

// Messages wait out the merge window before triage fires.
func TestMergeWindowDelaysTriage(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("how do I reset my token"))
	if f.models.count() != 0 {
		t.Fatal("triage fired before merge window elapsed")
	}

	f.advance(2 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 0 {
		t.Fatal("triage fired inside merge window")
	}

	f.advance(4 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 1 {
		t.Fatalf("expected triage after window, got %d calls", f.models.count())
	}
}

// Rapid-fire messages merge into one numbered evidence block.
func TestBatchMergesInOrder(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("first"))
	f.advance(time.Second)
	f.orch.HandleMessage(f.message("second"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()

	call := f.models.last()
	user := call.messages[len(call.messages)-1].Content
	if !strings.Contains(user, "1. first") || !strings.Contains(user, "2. second") {
		t.Fatalf("merged evidence missing numbered items: %q", user)
	}
	if strings.Index(user, "1. first") > strings.Index(user, "2. second") {
		t.Fatalf("evidence out of order: %q", user)
	}
}

// A direct mention skips the merge window entirely.
func TestMentionFlushesImmediately(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.mention("help me now"))
	if f.models.count() != 1 {
		t.Fatalf("expected immediate triage on mention, got %d calls", f.models.count())
	}
	user := f.models.last().messages[1].Content
	if !strings.Contains(user, "mentioned the assistant") {
		t.Fatalf("mention note missing from triage prompt: %q", user)
	}
}

// Hitting the batch cap flushes without waiting for the window.
func TestBatchOverflowFlushes(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) { c.BatchCap = 3 })

	f.orch.HandleMessage(f.message("a"))
	f.orch.HandleMessage(f.message("b"))
	if f.models.count() != 0 {
		t.Fatal("flushed before cap")
	}
	f.orch.HandleMessage(f.message("c"))
	if f.models.count() != 1 {
		t.Fatalf("expected overflow flush at cap, got %d calls", f.models.count())
	}
}

// A message addressed at another participant is not ours to triage.
func TestAddressedElsewhereIgnored(t *testing.T) {
	f := newFixture(t, nil)

	msg := f.message("hey can you look at this")
	msg.Segments = []bus.Segment{
		{Type: bus.SegmentText, Text: "hey can you look at this"},
		{Type: bus.SegmentAt, Target: "200002"},
	}
	f.orch.HandleMessage(msg)

	f.advance(10 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 0 {
		t.Fatal("triaged a message addressed at someone else")
	}
}

// Only one triage pipeline runs per participant; messages arriving during
// triage stay queued.
func TestNoConcurrentTriage(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("first"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 1 {
		t.Fatalf("expected 1 triage, got %d", f.models.count())
	}

	// Mention would normally force a flush, but a pipeline is in flight.
	f.orch.HandleMessage(f.mention("second"))
	if f.models.count() != 1 {
		t.Fatal("second triage started while first still pending")
	}
}

// Triage NO consumes the evidence and stays silent.
func TestTriageDeclineStaysQuiet(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("just chatting"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	f.resolveLastModel(`{"decision":"no","confidence":0.9,"reason":"casual"}`)

	if f.sender.replyCount() != 0 {
		t.Fatal("sent a reply after triage declined")
	}
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session opened after triage declined")
	}
}

// Triage call failure requeues the evidence for the next window.
func TestTriageFailureRequeues(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("please help"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	f.orch.HandleModelResult(bus.ModelResult{RequestID: f.models.last().requestID, Success: false})

	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 2 {
		t.Fatalf("expected retry triage, got %d calls", f.models.count())
	}
	if !strings.Contains(f.models.last().messages[1].Content, "please help") {
		t.Fatal("requeued evidence lost")
	}
}

// A triage result nobody is waiting for is dropped.
func TestUnknownResultIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.orch.HandleModelResult(bus.ModelResult{RequestID: "req-never-issued", Success: true, Content: "YES"})
	if f.orch.ActiveSessions() != 0 || f.sender.replyCount() != 0 {
		t.Fatal("unknown result had side effects")
	}
}

// --- session lifecycle ---

// Triage YES seeds the transcript with the evidence and issues the first turn.
func TestEngageStartsSessionAndReplies(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("my deploy is stuck")

	if f.orch.ActiveSessions() != 1 {
		t.Fatalf("expected 1 active session, got %d", f.orch.ActiveSessions())
	}
	call := f.models.last()
	if call.opts.MaxTokens != 1024 {
		t.Fatalf("reply call max tokens = %d", call.opts.MaxTokens)
	}
	if !strings.Contains(call.messages[1].Content, "my deploy is stuck") {
		t.Fatal("evidence missing from reply transcript")
	}

	f.resolveLastModel("try rolling back first")
	got := f.sender.lastReply()
	if got.text != "try rolling back first" {
		t.Fatalf("reply not delivered: %+v", got)
	}
	if got.participantID != "100001" || got.roomID != "roomA" {
		t.Fatalf("reply misaddressed: %+v", got)
	}
}

// Messages that piled up during triage join the new session's transcript.
func TestLateMessagesFoldIntoSession(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("first"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	f.orch.HandleMessage(f.message("also this"))
	f.resolveLastModel("YES")

	call := f.models.last()
	var all []string
	for _, m := range call.messages {
		all = append(all, m.Content)
	}
	joined := strings.Join(all, "\n")
	if !strings.Contains(joined, "also this") {
		t.Fatal("late message not folded into transcript")
	}
}

// While a reply is in flight, new input defers instead of double-calling.
func TestReplyDeferralDrainsAfterResolution(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("question one")

	f.orch.HandleMessage(f.message("question two"))
	if f.models.count() != 2 {
		t.Fatal("issued a second reply while one was pending")
	}

	f.resolveLastModel("answer one")
	if f.models.count() != 3 {
		t.Fatalf("deferred reply not issued, got %d calls", f.models.count())
	}
	call := f.models.last()
	last := call.messages[len(call.messages)-1]
	if last.Role != "user" || last.Content != "question two" {
		t.Fatalf("deferred input missing from transcript: %+v", last)
	}
}

// The interrupt keyword ends the session immediately with an acknowledgement.
func TestInterruptKeywordEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("here is a thought")

	f.orch.HandleMessage(f.message("stop"))
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session survived interrupt")
	}
	if f.sender.lastReply().text != defaultInterruptAck {
		t.Fatalf("missing interrupt acknowledgement, got %q", f.sender.lastReply().text)
	}
}

// Keyword matching is case-insensitive on the whole trimmed message.
func TestKeywordMatching(t *testing.T) {
	keywords := []string{"stop", "生成报告"}
	cases := []struct {
		text string
		want bool
	}{
		{"stop", true},
		{"STOP", true},
		{"  Stop  ", true},
		{"stop it", false},
		{"生成报告", true},
		{"please 生成报告", false},
	}
	for _, tc := range cases {
		if got := matchKeyword(tc.text, keywords); got != tc.want {
			t.Errorf("matchKeyword(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

// Ended sessions leave a cooldown behind; new messages are ignored until it
// lapses.
func TestCooldownSuppressesReengagement(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("sure")
	f.orch.HandleMessage(f.message("stop"))

	calls := f.models.count()
	f.orch.HandleMessage(f.message("actually one more thing"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != calls {
		t.Fatal("triage fired during cooldown")
	}

	// Cooldown measured from session end, not start.
	f.advance(11 * time.Minute)
	f.orch.HandleMessage(f.message("hello again"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != calls+1 {
		t.Fatal("triage did not resume after cooldown lapsed")
	}
}

// Reply failure apologizes and ends the session.
func TestReplyFailureEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")

	f.orch.HandleModelResult(bus.ModelResult{RequestID: f.models.last().requestID, Success: false})
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session survived reply failure")
	}
	if f.sender.lastReply().text != defaultReplyFailed {
		t.Fatalf("missing failure notice, got %q", f.sender.lastReply().text)
	}
}

// --- reports ---

func reportOutput(longform, actions string) string {
	return longform + "\n" + reportDelimiter + "\n" + actions
}

// The report keyword generates a two-section report delivered as a forward
// bundle, then ends the session.
func TestReportKeywordDeliversForward(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("first answer")

	f.orch.HandleMessage(f.message("summarize"))
	call := f.models.last()
	if call.opts.MaxTokens != 4096 {
		t.Fatalf("report call max tokens = %d", call.opts.MaxTokens)
	}

	f.resolveLastModel(reportOutput("## What happened\nWe fixed it.", "1. roll back\n2. redeploy"))
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session survived report")
	}

	parts := f.sender.waitForward(t)
	if len(parts) != 2 {
		t.Fatalf("expected longform + actions parts, got %d", len(parts))
	}
	if !strings.Contains(parts[0].Content, "We fixed it.") {
		t.Fatalf("longform part wrong: %q", parts[0].Content)
	}
	if parts[1].Title != "Actions" || !strings.Contains(parts[1].Content, "roll back") {
		t.Fatalf("actions part wrong: %+v", parts[1])
	}
}

// Report output without the delimiter all goes to the long-form section.
func TestReportWithoutDelimiter(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("answer")

	f.orch.HandleMessage(f.message("summarize"))
	f.resolveLastModel("just one blob of text")

	parts := f.sender.waitForward(t)
	if len(parts) != 1 || !strings.Contains(parts[0].Content, "one blob") {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

// A long action summary is chunked to the configured width just like the
// long-form section; no part ships unbounded.
func TestReportActionsChunked(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) { c.ReportChunkWidth = 40 })
	f.engage("help")
	f.resolveLastModel("answer")

	lines := make([]string, 8)
	for i := range lines {
		lines[i] = fmt.Sprintf("%d. restart the ingest workers", i+1)
	}
	f.orch.HandleMessage(f.message("summarize"))
	f.resolveLastModel(reportOutput("short summary", strings.Join(lines, "\n")))

	parts := f.sender.waitForward(t)
	var actions []bus.ForwardPart
	for _, p := range parts {
		if strings.HasPrefix(p.Title, "Actions") {
			actions = append(actions, p)
		}
	}
	if len(actions) < 2 {
		t.Fatalf("action summary not chunked: %d parts", len(actions))
	}
	var joined []string
	for i, p := range actions {
		if w := runewidth.StringWidth(p.Content); w > 40 {
			t.Fatalf("actions part %d is %d wide", i, w)
		}
		if want := fmt.Sprintf("Actions (%d/%d)", i+1, len(actions)); p.Title != want {
			t.Fatalf("actions part %d titled %q", i, p.Title)
		}
		joined = append(joined, p.Content)
	}
	for _, line := range lines {
		if !strings.Contains(strings.Join(joined, "\n"), line) {
			t.Fatalf("chunking lost line %q", line)
		}
	}
}

// Asking for a report before any assistant turn yields the nothing-to-say
// notice instead of a model call.
func TestReportWithNothingToSummarize(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	calls := f.models.count()

	f.orch.HandleMessage(f.message("summarize"))
	// Reply still pending: report deferred until the turn resolves.
	if f.models.count() != calls {
		t.Fatal("report issued while reply pending")
	}
	f.resolveLastModel("")
	// Empty reply fails the turn and ends the session; with zero completed
	// turns there is nothing to report.
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session should have ended")
	}
}

// Hitting the turn ceiling wraps up with an automatic report.
func TestMaxTurnsTriggersReport(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) { c.MaxTurns = 2 })
	f.engage("help")
	f.resolveLastModel("turn one")

	f.orch.HandleMessage(f.message("more please"))
	f.resolveLastModel("turn two")

	// Turn ceiling reached: the next call is the report.
	call := f.models.last()
	if call.messages[0].Content != defaultReportSystem {
		t.Fatalf("expected report call after max turns, got system %q", call.messages[0].Content[:40])
	}
	f.resolveLastModel(reportOutput("done", "nothing"))
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session survived auto report")
	}
	f.sender.waitForward(t)
}

// Report keyword arriving while a reply is pending takes effect when the
// reply resolves.
func TestReportDeferredBehindPendingReply(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")

	f.orch.HandleMessage(f.message("生成报告"))
	f.resolveLastModel("the answer")

	call := f.models.last()
	if call.messages[0].Content != defaultReportSystem {
		t.Fatal("deferred report not started after reply resolved")
	}
}

// Report failure sends a notice and ends the session without a bundle.
func TestReportFailureNotifies(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("answer")

	f.orch.HandleMessage(f.message("summarize"))
	f.orch.HandleModelResult(bus.ModelResult{RequestID: f.models.last().requestID, Success: false})

	if f.orch.ActiveSessions() != 0 {
		t.Fatal("session survived report failure")
	}
	if f.sender.lastReply().text != defaultReportFailed {
		t.Fatalf("missing report failure notice, got %q", f.sender.lastReply().text)
	}
}

// --- reaper ---

// Idle sessions expire on tick with a notice.
func TestIdleSessionExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	f.resolveLastModel("answer")

	f.advance(6 * time.Minute)
	f.orch.HandleTick()
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("idle session not expired")
	}
	if f.sender.lastReply().text != defaultSessionIdle {
		t.Fatalf("missing idle notice, got %q", f.sender.lastReply().text)
	}
}

// A reply that never comes back times out; mention-started sessions get told
// and stay open.
func TestReplyTimeoutMentionStartedStaysOpen(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.mention("urgent question"))
	f.resolveLastModel("YES")
	if f.models.count() != 2 {
		t.Fatalf("expected reply call, got %d", f.models.count())
	}

	f.advance(2 * time.Minute)
	f.orch.HandleTick()
	if f.orch.ActiveSessions() != 1 {
		t.Fatal("mention-started session ended on reply timeout")
	}
	if f.sender.lastReply().text != defaultReplyTimedOut {
		t.Fatalf("missing timeout notice, got %q", f.sender.lastReply().text)
	}

	// The stale result must not resurface later.
	f.resolveLastModel("late answer")
	if f.sender.lastReply().text == "late answer" {
		t.Fatal("stale reply delivered after timeout")
	}
}

// Auto-started sessions end silently when a reply times out.
func TestReplyTimeoutAutoStartedEndsSilently(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")
	replies := f.sender.replyCount()

	f.advance(2 * time.Minute)
	f.orch.HandleTick()
	if f.orch.ActiveSessions() != 0 {
		t.Fatal("auto-started session survived reply timeout")
	}
	if f.sender.replyCount() != replies {
		t.Fatal("timeout on auto session should be silent")
	}
}

// Stuck triage calls time out and requeue their evidence.
func TestTriageTimeoutRequeues(t *testing.T) {
	f := newFixture(t, nil)

	f.orch.HandleMessage(f.message("anyone?"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	calls := f.models.count()

	f.advance(30 * time.Second)
	f.orch.HandleTick()
	// Requeued items are due again on the same tick sweep cycle.
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != calls+1 {
		t.Fatalf("expected triage retry after timeout, got %d calls", f.models.count())
	}
}

// --- room context pipeline ---

// With room context enabled, triage is preceded by notice and history
// fetches, and their content lands in the triage prompt.
func TestRoomContextPipeline(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) {
		c.RoomContextEnabled = true
		c.RoomHistoryCount = 15
	})

	f.orch.HandleMessage(f.message("is the outage over"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()

	if len(f.rooms.notices) != 1 {
		t.Fatalf("expected notice fetch, got %d", len(f.rooms.notices))
	}
	f.orch.HandleRoomInfo(bus.RoomInfoResult{
		RequestID: f.rooms.notices[0].requestID,
		InfoType:  bus.RoomInfoNotice,
		Success:   true,
		Content:   "maintenance window tonight",
	})

	if len(f.rooms.histories) != 1 {
		t.Fatalf("expected history fetch, got %d", len(f.rooms.histories))
	}
	if f.rooms.histories[0].count != 15 {
		t.Fatalf("history count = %d", f.rooms.histories[0].count)
	}
	f.orch.HandleRoomInfo(bus.RoomInfoResult{
		RequestID: f.rooms.histories[0].requestID,
		InfoType:  bus.RoomInfoHistory,
		Success:   true,
		Content:   "alice: servers are back",
	})

	if f.models.count() != 1 {
		t.Fatalf("triage not issued after context pipeline, got %d calls", f.models.count())
	}
	prompt := f.models.last().messages[1].Content
	if !strings.Contains(prompt, "maintenance window tonight") || !strings.Contains(prompt, "servers are back") {
		t.Fatalf("room context missing from triage prompt: %q", prompt)
	}
}

// A failed fetch degrades to triage with partial context instead of stalling.
func TestRoomContextFetchFailureDegrades(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) { c.RoomContextEnabled = true })

	f.orch.HandleMessage(f.message("question"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()

	f.orch.HandleRoomInfo(bus.RoomInfoResult{RequestID: f.rooms.notices[0].requestID, InfoType: bus.RoomInfoNotice})
	f.orch.HandleRoomInfo(bus.RoomInfoResult{RequestID: f.rooms.histories[0].requestID, InfoType: bus.RoomInfoHistory})

	if f.models.count() != 1 {
		t.Fatal("triage not issued after failed fetches")
	}
}

// Direct messages (no room) skip the context pipeline entirely.
func TestDirectMessageSkipsRoomContext(t *testing.T) {
	f := newFixture(t, func(c *config.OrchestratorConfig) { c.RoomContextEnabled = true })

	msg := f.message("dm question")
	msg.RoomID = ""
	f.orch.HandleMessage(msg)
	f.advance(6 * time.Second)
	f.orch.HandleTick()

	if len(f.rooms.notices) != 0 {
		t.Fatal("fetched room context for a direct message")
	}
	if f.models.count() != 1 {
		t.Fatal("triage not issued for direct message")
	}
}

// --- misc ---

// Cooldown seeding survives the key round trip.
func TestSeedCooldowns(t *testing.T) {
	f := newFixture(t, nil)
	key := Key{Channel: "onebot", RoomID: "roomA", ParticipantID: "100001"}
	f.orch.SeedCooldowns(map[string]time.Time{key.Encode(): f.clock.Add(-time.Minute)})

	f.orch.HandleMessage(f.message("hello"))
	f.advance(6 * time.Second)
	f.orch.HandleTick()
	if f.models.count() != 0 {
		t.Fatal("seeded cooldown not honored")
	}
}

// Reload swaps limits between events without disturbing live sessions.
func TestReloadKeepsSessions(t *testing.T) {
	f := newFixture(t, nil)
	f.engage("help")

	next := config.Default().Orchestrator
	next.MaxTurns = 1
	f.orch.Reload(next)

	if f.orch.ActiveSessions() != 1 {
		t.Fatal("reload dropped an active session")
	}
	f.resolveLastModel("answer")
	// New MaxTurns applies immediately: one turn reached, report starts.
	if f.models.last().messages[0].Content != defaultReportSystem {
		t.Fatal("reloaded turn ceiling not applied")
	}
}
