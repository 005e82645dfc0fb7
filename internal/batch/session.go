// Package batch aggregates the per-target state of one fan-out run: which
// targets exist, what each has logged, and where each stands in its
// lifecycle. The per-target records are authoritative; the aggregated
// timeline is a derived, append-only view across all targets.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/moonheart/nodenexus-go/internal/event"
)

// Wire frame types consumed by a session, republished by the connection
// manager under these kinds.
const (
	KindAccepted  event.Kind = "batch_command_accepted"
	KindOutput    event.Kind = "batch_command_output"
	KindStatus    event.Kind = "batch_command_status"
	KindCompleted event.Kind = "batch_command_completed"
)

// AcceptedPayload carries the server-issued task id.
type AcceptedPayload struct {
	TaskID string `json:"taskId"`
}

// OutputPayload is one log line from one target.
type OutputPayload struct {
	TaskID  string `json:"taskId"`
	VPSID   int    `json:"vpsId"`
	VPSName string `json:"vpsName"`
	Line    string `json:"line"`
}

// StatusPayload is an explicit status transition for one target.
type StatusPayload struct {
	TaskID   string `json:"taskId"`
	VPSID    int    `json:"vpsId"`
	VPSName  string `json:"vpsName"`
	Status   Status `json:"status"`
	ExitCode *int   `json:"exitCode"`
}

// CompletedPayload marks the whole run finished.
type CompletedPayload struct {
	TaskID string `json:"taskId"`
}

// RunCommand is the outbound run-start command.
type RunCommand struct {
	CommandContent   string `json:"command_content"`
	TargetVPSIDs     []int  `json:"target_vps_ids"`
	WorkingDirectory string `json:"working_directory"`
}

type terminateCommand struct {
	Type string `json:"type"`
}

// Sender transmits a command over the live connection. Satisfied by
// *client.Manager.
type Sender interface {
	Send(v any) error
}

// Target is the record for one destination in the run. Records are created
// lazily on the first frame naming the destination and never removed for the
// lifetime of the session.
type Target struct {
	ID       int
	Name     string
	Status   Status
	ExitCode *int
	Log      []string
	// Selected marks targets the run was originally addressed to. Frames for
	// other destinations still get a record and still reach the aggregated
	// timeline, but they are not part of the seeded set.
	Selected bool
}

func (t *Target) clone() *Target {
	c := *t
	if t.ExitCode != nil {
		code := *t.ExitCode
		c.ExitCode = &code
	}
	c.Log = make([]string, len(t.Log))
	copy(c.Log, t.Log)
	return &c
}

// TimelineEntry is one line of the "all targets together" view. RunLevel
// marks lines that belong to the run as a whole rather than to one target.
type TimelineEntry struct {
	VPSID    int
	Line     string
	RunLevel bool
}

// Session aggregates one fan-out run. A new run always gets a new Session;
// the previous one is discarded, never mutated, so late frames from a
// superseded run are dropped by their task id.
type Session struct {
	sender  Sender
	command string
	workdir string

	// OnEntry, when set before Attach, is invoked synchronously for every
	// appended timeline entry.
	OnEntry func(TimelineEntry)

	mu       sync.Mutex
	taskID   string
	targets  map[int]*Target
	order    []int
	timeline []TimelineEntry
	finished bool
}

// NewSession seeds a session with the originally selected target ids, all
// Pending until the server says otherwise.
func NewSession(sender Sender, command, workdir string, targetIDs []int) *Session {
	s := &Session{
		sender:  sender,
		command: command,
		workdir: workdir,
		targets: make(map[int]*Target),
	}
	for _, id := range targetIDs {
		if _, ok := s.targets[id]; ok {
			continue
		}
		s.targets[id] = &Target{ID: id, Status: Pending, Selected: true}
		s.order = append(s.order, id)
	}
	return s
}

// Start sends the run-start command over the connection.
func (s *Session) Start() error {
	s.mu.Lock()
	cmd := RunCommand{
		CommandContent:   s.command,
		TargetVPSIDs:     append([]int(nil), s.order...),
		WorkingDirectory: s.workdir,
	}
	s.mu.Unlock()
	return s.sender.Send(cmd)
}

// Terminate asks the server to stop the run. It is only meaningful while the
// run is unfinished, and it does not itself touch any target's status; the
// authoritative transitions arrive later as frames.
func (s *Session) Terminate() error {
	s.mu.Lock()
	finished, accepted := s.finished, s.taskID != ""
	s.mu.Unlock()
	if !accepted {
		return errors.New("terminate: run not accepted yet")
	}
	if finished {
		return errors.New("terminate: run already finished")
	}
	return s.sender.Send(terminateCommand{Type: "TERMINATE_TASK"})
}

// Attach subscribes the session's frame handlers on the bus. The returned
// subscriptions let the owner detach the session when a new run supersedes it.
func (s *Session) Attach(bus *event.Bus) []event.Subscription {
	return []event.Subscription{
		bus.Subscribe(KindAccepted, decoding(s.handleAccepted)),
		bus.Subscribe(KindOutput, decoding(s.handleOutput)),
		bus.Subscribe(KindStatus, decoding(s.handleStatus)),
		bus.Subscribe(KindCompleted, decoding(s.handleCompleted)),
	}
}

// decoding adapts a typed handler to the bus's raw-JSON payloads. Payloads
// that fail to decode are dropped with a diagnostic, mirroring how the
// connection manager treats malformed frames.
func decoding[T any](handle func(T)) func(any) {
	return func(payload any) {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			log.Printf("batch: unexpected payload type %T", payload)
			return
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Printf("batch: dropping undecodable payload: %v", err)
			return
		}
		handle(v)
	}
}

func (s *Session) handleAccepted(p AcceptedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskID != "" {
		return // a second acceptance belongs to someone else's run
	}
	s.taskID = p.TaskID
}

func (s *Session) handleOutput(p OutputPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matches(p.TaskID) {
		return
	}
	t := s.target(p.VPSID, p.VPSName)
	t.Log = append(t.Log, p.Line)
	// A target that logs has evidently started, even without an explicit
	// status frame.
	if t.Status == Pending {
		t.Status = Running
	}
	s.append(TimelineEntry{VPSID: p.VPSID, Line: p.Line})
}

func (s *Session) handleStatus(p StatusPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matches(p.TaskID) {
		return
	}
	t := s.target(p.VPSID, p.VPSName)
	t.Status = p.Status
	if p.ExitCode != nil {
		t.ExitCode = p.ExitCode
	}

	line := fmt.Sprintf("status: %s", p.Status)
	if p.ExitCode != nil {
		line = fmt.Sprintf("status: %s (exit %d)", p.Status, *p.ExitCode)
	}
	t.Log = append(t.Log, line)
	s.append(TimelineEntry{VPSID: p.VPSID, Line: line})
}

func (s *Session) handleCompleted(p CompletedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matches(p.TaskID) || s.finished {
		return
	}
	s.finished = true
	// Targets still Pending stay Pending: "never started" must remain
	// distinguishable from "crashed".
	s.append(TimelineEntry{RunLevel: true, Line: fmt.Sprintf("run %s finished", s.taskID)})
}

// matches reports whether a frame belongs to this session's run. Frames that
// arrive before acceptance, or tagged with a superseded run's id, are stale.
func (s *Session) matches(taskID string) bool {
	return s.taskID != "" && taskID == s.taskID
}

// target returns the record for id, creating it lazily. Callers hold s.mu.
func (s *Session) target(id int, name string) *Target {
	t, ok := s.targets[id]
	if !ok {
		t = &Target{ID: id, Status: Pending}
		s.targets[id] = t
		s.order = append(s.order, id)
	}
	if name != "" {
		t.Name = name
	}
	return t
}

// append adds a timeline entry. Callers hold s.mu; the OnEntry callback runs
// with the lock held, so it must not call back into the session.
func (s *Session) append(e TimelineEntry) {
	s.timeline = append(s.timeline, e)
	if s.OnEntry != nil {
		s.OnEntry(e)
	}
}

// TaskID returns the server-issued run id, empty before acceptance.
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// Finished reports whether the run-level completion frame has arrived.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Target returns a copy of one target's record.
func (s *Session) Target(id int) (*Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Targets returns copies of all records in first-seen order.
func (s *Session) Targets() []*Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Target, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.targets[id].clone())
	}
	return out
}

// Timeline returns a copy of the aggregated view in arrival order.
func (s *Session) Timeline() []TimelineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimelineEntry, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// FailedCount returns how many targets ended in Failed.
func (s *Session) FailedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.targets {
		if t.Status == Failed {
			n++
		}
	}
	return n
}
