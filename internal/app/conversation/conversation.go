package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

// FallbackReply is shown in place of a reply when generation or upload fails.
const FallbackReply = "sorry, i couldn't come up with a reply just now. mind trying that again?"

const defaultContextWindow = 5

type Options struct {
	UserID        domain.UserID
	Mode          domain.Mode
	ContextWindow int // last N messages sent to the response service
	Timings       Timings
}

type Deps struct {
	Responder domain.ResponseService
	Store     domain.SessionStore
	Uploader  domain.MediaUploader // optional, image attachments fail without it
	Previewer domain.LinkPreviewer // optional

	Clock    Clock
	Jitter   func() float64 // uniform in [0,1)
	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
}

// Conversation is the single owner of the displayed conversation. Every
// mutation happens under mu and is followed by a snapshot publication.
type Conversation struct {
	responder domain.ResponseService
	uploader  domain.MediaUploader
	previewer domain.LinkPreviewer
	clock     Clock
	jitter    func() float64
	now       func() time.Time
	log       *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics

	userID        domain.UserID
	contextWindow int
	timings       Timings

	lifecycle *Lifecycle
	observer  Observer
	subs      *broadcaster

	mu       sync.Mutex
	state    State
	epoch    uint64 // bumped whenever in-flight work is superseded
	cancel   context.CancelFunc
	inFlight bool // a response service call (or its uploads) is running
	closed   bool

	wg sync.WaitGroup
}

func New(deps Deps, opts Options) (*Conversation, error) {
	if deps.Responder == nil {
		return nil, fmt.Errorf("conversation: response service is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("conversation: session store is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("conversation: user id is required")
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeSupportive
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("conversation: %w: %q", domain.ErrInvalidMode, opts.Mode)
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultContextWindow
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Jitter == nil {
		deps.Jitter = defaultJitter
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = observability.Logger()
	}

	log := deps.Logger.With("component", "conversation", "user_id", opts.UserID)
	m := newMetrics()

	c := &Conversation{
		responder:     deps.Responder,
		uploader:      deps.Uploader,
		previewer:     deps.Previewer,
		clock:         deps.Clock,
		jitter:        deps.Jitter,
		now:           deps.Now,
		log:           log,
		tracer:        observability.Tracer(),
		metrics:       m,
		userID:        opts.UserID,
		contextWindow: opts.ContextWindow,
		timings:       opts.Timings,
		lifecycle:     newLifecycle(deps.Store, opts.UserID, opts.Mode, log.With("component", "lifecycle"), m),
		observer:      deps.Observer,
		subs:          newBroadcaster(),
		state: State{
			ActiveMode:       opts.Mode,
			IsInitialLoading: true,
			Phase:            PhaseLoading,
		},
	}
	c.state.SessionID = c.lifecycle.SessionID()
	c.lifecycle.onChange = c.republish

	return c, nil
}

// Snapshot returns the current state.
func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe streams snapshots, starting with the current one. Call the
// returned func to stop.
func (c *Conversation) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.subscribe(c.state.clone())
}

// Lifecycle exposes the session bookkeeping, mostly for inspection.
func (c *Conversation) Lifecycle() *Lifecycle {
	return c.lifecycle
}

// Initialize loads prior sessions and resumes the most recent one, or seeds
// the mode greeting when there is none or the store fails.
func (c *Conversation) Initialize(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.supersedeLocked()
	epoch := c.epoch
	c.state.Phase = PhaseLoading
	c.state.IsInitialLoading = true
	c.state.ErrorMessage = ""
	c.publishLocked()
	c.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("user_id", c.userID)
	log.Info("initializing conversation")

	sessions, err := c.lifecycle.store.FetchSessions(ctx, c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		// superseded: a mode switch already seeded the conversation, or a
		// newer Initialize is still loading and owns the flag
		if c.state.IsInitialLoading && c.state.Phase != PhaseLoading {
			c.state.IsInitialLoading = false
			c.publishLocked()
		}
		return
	}

	latest, ok := latestSession(sessions)
	switch {
	case err != nil:
		log.Warn("failed to fetch sessions, starting fresh", "error", err)
		c.seedLocked(c.state.ActiveMode)
	case !ok:
		log.Info("no prior sessions, starting fresh")
		c.seedLocked(c.state.ActiveMode)
	default:
		log.Info("resuming session", "session_id", latest.ID, "messages", len(latest.Messages))
		c.resumeLocked(latest)
	}

	c.state.Phase = PhaseIdle
	c.state.IsInitialLoading = false
	c.publishLocked()
}

// latestSession picks the most recent session that has messages.
func latestSession(sessions []domain.Session) (domain.Session, bool) {
	var (
		best  domain.Session
		found bool
	)
	for _, s := range sessions {
		if len(s.Messages) == 0 {
			continue
		}
		if !found || !s.CreatedAt.Before(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found
}

// SwitchMode reseeds the conversation with the greeting of mode under a new
// session id. Switching to the active mode does nothing.
func (c *Conversation) SwitchMode(mode domain.Mode) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || mode == c.state.ActiveMode {
		return false, nil
	}

	c.log.Info("switching mode", "from", c.state.ActiveMode, "to", mode)
	c.supersedeLocked()
	c.seedLocked(mode)
	c.state.Phase = PhaseIdle
	c.state.IsInitialLoading = false
	c.state.ErrorMessage = ""
	c.publishLocked()
	return true, nil
}

// ContinueAfterResume moves a resumed conversation onto a new session id so
// new messages never mutate the stored one. Idempotent.
func (c *Conversation) ContinueAfterResume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle.ContinueAfterResume() {
		c.publishLocked()
	}
}

// Flush writes messages added since the last flush, in the background.
func (c *Conversation) Flush(ctx context.Context) bool {
	return c.lifecycle.Flush(ctx)
}

// Submit sends a user turn. It returns false when the input is empty, a
// response is already being generated, or the conversation is still loading.
func (c *Conversation) Submit(ctx context.Context, text string, attachments []domain.Attachment) bool {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.inFlight || c.state.Phase == PhaseLoading {
		c.log.Debug("submit rejected", "in_flight", c.inFlight, "phase", c.state.Phase)
		return false
	}

	// a reply still being revealed is dropped
	c.supersedeLocked()
	if c.lifecycle.ContinueAfterResume() {
		c.state.SessionID = c.lifecycle.SessionID()
	}

	epoch := c.epoch
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.inFlight = true
	c.state.ErrorMessage = ""
	c.state.IsAwaitingResponse = true
	c.state.Phase = PhaseAwaitingResponse

	if len(attachments) == 0 {
		c.appendUserLocked(text, nil)
		c.publishLocked()
		c.startLocked(func() { c.respond(pctx, epoch, nil) })
		return true
	}

	c.publishLocked()
	c.startLocked(func() { c.uploadAndRespond(pctx, epoch, text, attachments) })
	return true
}

func (c *Conversation) startLocked(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Conversation) uploadAndRespond(ctx context.Context, epoch uint64, text string, attachments []domain.Attachment) {
	refs, err := c.upload(ctx, attachments)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.log.Warn("attachment upload failed", "error", err)
		if text != "" {
			c.appendUserLocked(text, nil)
		}
		c.failLocked(err)
		c.mu.Unlock()
		return
	}
	c.appendUserLocked(text, refs)
	c.publishLocked()
	c.mu.Unlock()

	c.respond(ctx, epoch, attachments)
}

func (c *Conversation) upload(ctx context.Context, attachments []domain.Attachment) ([]domain.MediaRef, error) {
	if c.uploader == nil {
		return nil, fmt.Errorf("%w: no media uploader configured", domain.ErrUpload)
	}

	refs := make([]domain.MediaRef, 0, len(attachments))
	for _, a := range attachments {
		locator, err := c.uploader.Upload(ctx, a.Data, a.MIMEType)
		if err != nil {
			return nil, err
		}
		refs = append(refs, domain.MediaRef{
			ID:        domain.MediaID(domain.NewID()),
			Kind:      domain.MediaImage,
			Locator:   locator,
			CreatedAt: c.now(),
		})
	}
	return refs, nil
}

func (c *Conversation) respond(ctx context.Context, epoch uint64, attachments []domain.Attachment) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	req := domain.GenerateRequest{
		UserID:      c.userID,
		SessionID:   c.lifecycle.SessionID(),
		Mode:        c.state.ActiveMode,
		Context:     lastN(c.state.Messages, c.contextWindow),
		Attachments: attachments,
	}
	c.mu.Unlock()

	log := c.log.With("session_id", req.SessionID, "mode", req.Mode, "epoch", epoch)

	ctx, span := c.tracer.Start(ctx, "conversation.generate", trace.WithAttributes(
		attribute.String("mode", string(req.Mode)),
		attribute.Int("context_messages", len(req.Context)),
	))
	start := time.Now()
	reply, err := c.responder.Generate(ctx, req)
	c.metrics.generated(ctx, req.Mode, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		log.Debug("discarding superseded reply")
		return
	}
	c.inFlight = false

	if err != nil {
		log.Warn("response generation failed", "error", err)
		c.failLocked(err)
		c.mu.Unlock()
		return
	}

	bubbles := SplitBubbles(reply)
	if len(bubbles) == 0 {
		log.Warn("reply had no usable text")
		c.state.IsAwaitingResponse = false
		c.state.IsDelivering = false
		c.state.Phase = PhaseIdle
		c.publishLocked()
		c.mu.Unlock()
		return
	}

	c.state.Phase = PhaseDelivering
	c.state.IsDelivering = true
	c.publishLocked()
	c.mu.Unlock()

	c.deliver(ctx, epoch, bubbles)
}

// failLocked appends the fallback reply and returns to idle.
func (c *Conversation) failLocked(err error) {
	c.inFlight = false
	c.appendLocked(domain.NewMessage(domain.AuthorAssistant, FallbackReply, c.now()))
	c.state.ErrorMessage = domain.UserFacingError(err)
	c.state.IsAwaitingResponse = false
	c.state.IsDelivering = false
	c.state.Phase = PhaseIdle
	c.publishLocked()
}

func (c *Conversation) appendUserLocked(text string, refs []domain.MediaRef) {
	refs = append(refs, c.linkRefs(text)...)
	msg := domain.NewMessage(domain.AuthorUser, text, c.now(), refs...)
	c.appendLocked(msg)
	c.lifecycle.MarkDirtyOnUserTurn()
	c.fetchPreviewsLocked(msg)
}

// appendLocked keeps createdAt non-decreasing and tracks the message for the
// next flush.
func (c *Conversation) appendLocked(msg domain.Message) {
	if n := len(c.state.Messages); n > 0 {
		if prev := c.state.Messages[n-1].CreatedAt; msg.CreatedAt.Before(prev) {
			msg.CreatedAt = prev
		}
	}
	c.state.Messages = append(c.state.Messages, msg)
	c.lifecycle.Track(msg)
}

func (c *Conversation) seedLocked(mode domain.Mode) {
	c.lifecycle.Reset(mode)
	c.state.ActiveMode = mode
	c.state.Messages = nil
	c.state.IsResumedSession = false
	c.appendLocked(domain.NewMessage(domain.AuthorAssistant, mode.Greeting(), c.now()))
}

func (c *Conversation) resumeLocked(session domain.Session) {
	c.lifecycle.Resume(session)
	if session.Mode.Valid() {
		c.state.ActiveMode = session.Mode
	}
	msgs := append([]domain.Message(nil), session.Messages...)
	if !hasAssistantMessage(msgs) {
		greeting := domain.NewMessage(domain.AuthorAssistant, c.state.ActiveMode.Greeting(), msgs[0].CreatedAt)
		msgs = append([]domain.Message{greeting}, msgs...)
	}
	c.state.Messages = msgs
	c.state.IsResumedSession = true
}

// supersedeLocked invalidates whatever generation or delivery is running.
func (c *Conversation) supersedeLocked() {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false
	c.state.IsAwaitingResponse = false
	c.state.IsDelivering = false
	if c.state.Phase != PhaseLoading {
		c.state.Phase = PhaseIdle
	}
}

// apply runs fn on the state if epoch is still current and publishes.
func (c *Conversation) apply(epoch uint64, fn func(*State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return false
	}
	fn(&c.state)
	c.publishLocked()
	return true
}

func (c *Conversation) publishLocked() {
	c.state.SessionID = c.lifecycle.SessionID()
	snap := c.state.clone()
	if c.observer != nil {
		c.observer.OnState(snap)
	}
	c.subs.publish(snap)
}

func (c *Conversation) republish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.publishLocked()
	}
}

// Wait blocks until running pipelines and background writes are done.
func (c *Conversation) Wait() {
	c.wg.Wait()
	c.lifecycle.Wait()
}

// Close cancels in-flight work, flushes what is left and closes subscriptions.
func (c *Conversation) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.supersedeLocked()
	c.closed = true
	c.mu.Unlock()

	c.lifecycle.Flush(ctx)
	c.Wait()
	c.subs.closeAll()
}

func lastN(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Persistable()
	}
	return out
}

func hasAssistantMessage(msgs []domain.Message) bool {
	for _, m := range msgs {
		if m.Author == domain.AuthorAssistant {
			return true
		}
	}
	return false
}
