package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"exam-session-service/internal/broadcast"
	"exam-session-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle phase of the single live session.
type State string

const (
	StateIdle       State = "idle"
	StateSelected   State = "selected"
	StateAssigned   State = "assigned"
	StateInProgress State = "inProgress"
)

// Snapshot is everything a client needs to render the session from scratch.
type Snapshot struct {
	State        State                   `json:"state"`
	Status       domain.ExamStatus       `json:"status"`
	Participants domain.ParticipantCount `json:"participants"`
	Submissions  domain.SubmittedCount   `json:"submissions"`
}

// Deps wires the session service to its collaborators. Checkpoints is optional.
type Deps struct {
	Exams       ExamRepository
	Submissions SubmissionStore
	Blobs       BlobStore
	Checkpoints CheckpointStore
	Bus         Broadcaster
	Logger      zerolog.Logger
	Now         func() time.Time
}

// SessionService owns the one live exam session. Every mutation and the
// broadcast it causes happen under mu, so clients observe changes in the
// order they were applied.
type SessionService struct {
	exams       ExamRepository
	submissions SubmissionStore
	blobs       BlobStore
	checkpoints CheckpointStore
	bus         Broadcaster
	log         zerolog.Logger
	now         func() time.Time

	mu           sync.RWMutex
	activeID     string
	examName     string
	assigned     bool
	inProgress   bool
	timeLimit    int
	runLimit     int
	participants *registry
	results      aggregator
}

func NewSessionService(deps Deps) *SessionService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &SessionService{
		exams:        deps.Exams,
		submissions:  deps.Submissions,
		blobs:        deps.Blobs,
		checkpoints:  deps.Checkpoints,
		bus:          deps.Bus,
		log:          deps.Logger.With().Str("component", "session").Logger(),
		now:          now,
		participants: newRegistry(),
	}
	deps.Bus.OnEvict(s.Forget)
	return s
}

// Restore reloads the active exam recorded by the last checkpoint. A
// checkpoint naming an exam that no longer exists leaves the session idle.
func (s *SessionService) Restore(ctx context.Context) error {
	if s.checkpoints == nil {
		return nil
	}
	cp, ok, err := s.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok || cp.ActiveExamID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exam, err := s.exams.Get(ctx, cp.ActiveExamID)
	if errors.Is(err, domain.ErrExamNotFound) {
		s.log.Warn().Str("exam_id", cp.ActiveExamID).Msg("checkpointed exam is gone, starting idle")
		s.saveCheckpointLocked(ctx)
		return nil
	}
	if err != nil {
		return repoErr("get exam", err)
	}
	subs, err := s.submissions.ListByExam(ctx, exam.ID)
	if err != nil {
		return repoErr("list submissions", err)
	}

	s.activateLocked(exam, subs)
	s.assigned = cp.Assigned
	if cp.TimeLimitSeconds > 0 {
		s.timeLimit = cp.TimeLimitSeconds
	}
	s.log.Info().Str("exam_id", exam.ID).Int("submissions", len(subs)).Msg("session restored")
	return nil
}

// Select makes examID the active exam. Selecting the exam that is already
// active only re-broadcasts its status.
func (s *SessionService) Select(ctx context.Context, examID string) (domain.ExamStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return domain.ExamStatus{}, repoErr("get exam", err)
	}

	if exam.ID == s.activeID {
		s.examName = exam.Name
		status := s.statusLocked()
		s.bus.Publish(domain.NewExamStatusEvent(status))
		return status, nil
	}

	s.activateLocked(exam, nil)
	s.saveCheckpointLocked(ctx)
	s.log.Info().Str("exam_id", exam.ID).Msg("exam selected")
	s.publishAllLocked()
	return s.statusLocked(), nil
}

// Assign marks examID as assigned, persisting the flag and the time limit.
// A non-positive timeLimit keeps the exam's stored limit.
func (s *SessionService) Assign(ctx context.Context, examID string, timeLimit int) (domain.ExamStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return domain.ExamStatus{}, repoErr("get exam", err)
	}
	if timeLimit <= 0 {
		timeLimit = exam.EffectiveTimeLimit()
	}
	assigned := true
	if err := s.exams.Update(ctx, exam.ID, domain.ExamPatch{Assigned: &assigned, TimeLimitSeconds: &timeLimit}); err != nil {
		return domain.ExamStatus{}, repoErr("update exam", err)
	}

	reset := exam.ID != s.activeID
	if reset {
		s.activateLocked(exam, nil)
	}
	s.assigned = true
	s.timeLimit = timeLimit
	s.saveCheckpointLocked(ctx)
	s.log.Info().Str("exam_id", exam.ID).Int("time_limit", timeLimit).Msg("exam assigned")

	if reset {
		s.publishAllLocked()
	} else {
		s.bus.Publish(domain.NewExamStatusEvent(s.statusLocked()))
	}
	return s.statusLocked(), nil
}

// Start broadcasts the start signal. A positive timeLimit overrides the
// exam's limit for this run only. Starting with no active exam still signals
// clients but leaves the session out of progress.
func (s *SessionService) Start(_ context.Context, timeLimit int) domain.Start {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.timeLimit
	if timeLimit > 0 {
		limit = timeLimit
	}
	if limit <= 0 {
		limit = domain.DefaultTimeLimitSeconds
	}
	s.inProgress = s.activeID != ""
	if s.inProgress {
		s.runLimit = limit
	}

	start := domain.Start{TimeLimitSeconds: limit}
	s.log.Info().Str("exam_id", s.activeID).Int("time_limit", limit).Msg("exam started")
	s.bus.Publish(domain.Event{Type: domain.EventStart, Payload: start})
	s.bus.Publish(domain.NewExamStatusEvent(s.statusLocked()))
	return start
}

// End stops the exam and broadcasts the final results. The exam stays active
// so its results remain viewable until another exam is selected.
func (s *SessionService) End(_ context.Context) []domain.SubmissionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inProgress = false
	s.runLimit = 0
	summaries := s.results.summaries(s.activeID, true)
	s.log.Info().Str("exam_id", s.activeID).Int("submissions", len(summaries)).Msg("exam ended")
	s.bus.Publish(domain.Event{Type: domain.EventEnd, Payload: domain.End{Summaries: summaries}})
	s.bus.Publish(domain.NewExamStatusEvent(s.statusLocked()))
	return summaries
}

// DeleteExam removes the exam with its submissions and media. The repository
// row goes last so a failed attempt can simply be retried.
func (s *SessionService) DeleteExam(ctx context.Context, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return repoErr("get exam", err)
	}
	if err := s.submissions.DeleteByExam(ctx, exam.ID); err != nil {
		return repoErr("delete submissions", err)
	}
	if err := s.deleteBlobs(ctx, exam); err != nil {
		if exam.ID == s.activeID && s.results.clear() > 0 {
			s.bus.Publish(domain.NewSubmittedCountEvent(s.results.summaries(s.activeID, true)))
		}
		return err
	}
	if err := s.exams.Delete(ctx, exam.ID); err != nil {
		return repoErr("delete exam", err)
	}
	s.log.Info().Str("exam_id", exam.ID).Msg("exam deleted")

	if exam.ID == s.activeID {
		s.resetLocked()
		s.saveCheckpointLocked(ctx)
		s.publishAllLocked()
	}
	return nil
}

// ClearAll deletes every exam, submission and blob, then returns to idle.
// The active exam is deleted last; once it is gone the session goes idle
// even if a later step fails.
func (s *SessionService) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exams, err := s.exams.List(ctx, domain.ExamFilter{})
	if err != nil {
		return repoErr("list exams", err)
	}
	activeGone, err := s.clearLocked(ctx, activeLast(exams, s.activeID))
	if err != nil {
		if activeGone {
			s.resetLocked()
			s.saveCheckpointLocked(ctx)
			s.publishAllLocked()
		}
		return err
	}

	s.resetLocked()
	s.saveCheckpointLocked(ctx)
	s.log.Info().Int("exams", len(exams)).Msg("all exams cleared")
	s.publishAllLocked()
	return nil
}

// Submit grades answers against the active exam, stores the result and
// broadcasts the new submission count.
func (s *SessionService) Submit(ctx context.Context, examID, participant string, answers map[string]string) (domain.Submission, error) {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return domain.Submission{}, domain.ErrEmptyParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" || examID != s.activeID {
		return domain.Submission{}, domain.ErrNoActiveExam
	}
	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return domain.Submission{}, repoErr("get exam", err)
	}

	copied := make(map[string]string, len(answers))
	for q, a := range answers {
		copied[q] = a
	}
	sub := domain.Submission{
		ID:          uuid.NewString(),
		ExamID:      exam.ID,
		Participant: participant,
		Answers:     copied,
		Score:       domain.Score(exam.AnswerKey, copied),
		SubmittedAt: s.now().UTC(),
	}
	if err := s.submissions.Append(ctx, sub); err != nil {
		return domain.Submission{}, repoErr("append submission", err)
	}

	s.results.add(sub)
	s.log.Info().Str("exam_id", exam.ID).Str("participant", participant).Int("score", sub.Score).Msg("submission recorded")
	s.bus.Publish(domain.NewSubmittedCountEvent(s.results.summaries(s.activeID, true)))
	return sub, nil
}

// DeleteSubmissions removes individual submissions from the store and from
// the live results.
func (s *SessionService) DeleteSubmissions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.submissions.DeleteByIDs(ctx, ids); err != nil {
		return repoErr("delete submissions", err)
	}
	if s.results.remove(ids) > 0 {
		s.bus.Publish(domain.NewSubmittedCountEvent(s.results.summaries(s.activeID, true)))
	}
	return nil
}

// Connect registers conn with the bus and queues the current snapshot to it
// before any later broadcast.
func (s *SessionService) Connect(conn broadcast.Conn) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.bus.Register(conn)
	for _, ev := range s.snapshotEventsLocked() {
		s.bus.SendTo(id, ev)
	}
	return id
}

// Resync queues a fresh snapshot to one connection.
func (s *SessionService) Resync(connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.snapshotEventsLocked() {
		if !s.bus.SendTo(connID, ev) {
			return false
		}
	}
	return true
}

// Disconnect drops the connection and its participant entry.
func (s *SessionService) Disconnect(connID string) {
	s.bus.Unregister(connID)
	s.Forget(connID)
}

// Notify sends ev to one connection only.
func (s *SessionService) Notify(connID string, ev domain.Event) bool {
	return s.bus.SendTo(connID, ev)
}

// Identify associates a display name with a connection.
func (s *SessionService) Identify(connID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrEmptyParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.participants.identify(connID, name)
	s.bus.Publish(domain.NewParticipantCountEvent(s.participants.names()))
	return nil
}

// Forget removes the connection's participant entry. Unknown connections are
// ignored.
func (s *SessionService) Forget(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.participants.forget(connID) {
		s.bus.Publish(domain.NewParticipantCountEvent(s.participants.names()))
	}
}

// ParticipantName returns the name connID identified as.
func (s *SessionService) ParticipantName(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participants.nameOf(connID)
}

func (s *SessionService) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participants.count()
}

// Summaries lists results for examID. Only the active exam has any.
func (s *SessionService) Summaries(examID string, newestFirst bool) []domain.SubmissionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results.summaries(examID, newestFirst)
}

func (s *SessionService) Status() domain.ExamStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *SessionService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *SessionService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.participants.names()
	summaries := s.results.summaries(s.activeID, true)
	return Snapshot{
		State:        s.stateLocked(),
		Status:       s.statusLocked(),
		Participants: domain.ParticipantCount{Count: len(names), Names: names},
		Submissions:  domain.SubmittedCount{Count: len(summaries), Summaries: summaries},
	}
}

func (s *SessionService) activateLocked(exam domain.Exam, subs []domain.Submission) {
	s.activeID = exam.ID
	s.examName = exam.Name
	s.assigned = false
	s.inProgress = false
	s.timeLimit = exam.EffectiveTimeLimit()
	s.runLimit = 0
	s.participants.reset()
	s.results.reset(exam.ID, subs)
}

func (s *SessionService) resetLocked() {
	s.activeID = ""
	s.examName = ""
	s.assigned = false
	s.inProgress = false
	s.timeLimit = 0
	s.runLimit = 0
	s.participants.reset()
	s.results.reset("", nil)
}

func (s *SessionService) stateLocked() State {
	switch {
	case s.activeID == "":
		return StateIdle
	case s.inProgress:
		return StateInProgress
	case s.assigned:
		return StateAssigned
	default:
		return StateSelected
	}
}

func (s *SessionService) statusLocked() domain.ExamStatus {
	if s.activeID == "" {
		return domain.ExamStatus{}
	}
	id := s.activeID
	limit := s.timeLimit
	if s.inProgress && s.runLimit > 0 {
		limit = s.runLimit
	}
	return domain.ExamStatus{
		ID:               &id,
		Name:             s.examName,
		Assigned:         s.assigned,
		InProgress:       s.inProgress,
		TimeLimitSeconds: limit,
	}
}

func (s *SessionService) snapshotEventsLocked() []domain.Event {
	return []domain.Event{
		domain.NewExamStatusEvent(s.statusLocked()),
		domain.NewParticipantCountEvent(s.participants.names()),
		domain.NewSubmittedCountEvent(s.results.summaries(s.activeID, true)),
	}
}

func (s *SessionService) publishAllLocked() {
	for _, ev := range s.snapshotEventsLocked() {
		s.bus.Publish(ev)
	}
}

func (s *SessionService) saveCheckpointLocked(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	cp := domain.Checkpoint{ActiveExamID: s.activeID, Assigned: s.assigned, TimeLimitSeconds: s.timeLimit}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.log.Warn().Err(err).Msg("checkpoint save failed")
	}
}

// clearLocked reports whether the active exam was removed before any error.
func (s *SessionService) clearLocked(ctx context.Context, exams []domain.Exam) (bool, error) {
	activeGone := false
	for _, exam := range exams {
		if err := s.deleteBlobs(ctx, exam); err != nil {
			return activeGone, err
		}
		if err := s.exams.Delete(ctx, exam.ID); err != nil && !errors.Is(err, domain.ErrExamNotFound) {
			return activeGone, repoErr("delete exam", err)
		}
		if exam.ID == s.activeID {
			activeGone = true
		}
	}
	if err := s.submissions.ClearAll(ctx); err != nil {
		return activeGone, repoErr("clear submissions", err)
	}
	return activeGone, nil
}

func activeLast(exams []domain.Exam, activeID string) []domain.Exam {
	ordered := make([]domain.Exam, 0, len(exams))
	var active []domain.Exam
	for _, exam := range exams {
		if exam.ID == activeID {
			active = append(active, exam)
			continue
		}
		ordered = append(ordered, exam)
	}
	return append(ordered, active...)
}

func (s *SessionService) deleteBlobs(ctx context.Context, exam domain.Exam) error {
	for _, ref := range exam.BlobRefs() {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			return fmt.Errorf("%w: delete %s: %w", domain.ErrBlobStore, ref, err)
		}
	}
	return nil
}

// repoErr tags collaborator failures while letting not-found through untouched.
func repoErr(op string, err error) error {
	if errors.Is(err, domain.ErrExamNotFound) || errors.Is(err, domain.ErrRepository) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRepository, op, err)
}
