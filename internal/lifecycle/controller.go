package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"docsign/internal/session"
	"docsign/internal/transport"
	"docsign/pkg/domain"
	"golang.org/x/sync/errgroup"
)

const defaultStatusConcurrency = 4

// Controller validates lifecycle intents against tracked state and issues
// them to the document service. It does not serialize concurrent calls on
// the same document; the service is the authority on ordering.
type Controller struct {
	client            *transport.Client
	tracker           Tracker
	statusConcurrency int
	now               func() time.Time

	mu   sync.RWMutex
	docs []domain.DocumentRecord
}

type Option func(*Controller)

// WithTracker replaces the default in-memory tracker.
func WithTracker(t Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithStatusConcurrency bounds the fan-out of RefreshStatuses.
func WithStatusConcurrency(n int) Option {
	return func(c *Controller) { c.statusConcurrency = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController builds a controller issuing requests through client.
func NewController(client *transport.Client, opts ...Option) *Controller {
	c := &Controller{
		client:            client,
		tracker:           NewMemoryTracker(),
		statusConcurrency: defaultStatusConcurrency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.statusConcurrency <= 0 {
		c.statusConcurrency = defaultStatusConcurrency
	}
	return c
}

// ForSigner returns a controller bound to the signer token of link. The
// owner's session is left untouched and the linked document starts as SENT.
func (c *Controller) ForSigner(link SigningLink) (*Controller, error) {
	if link.Token == "" || link.DocumentID <= 0 {
		return nil, fmt.Errorf("invalid signing link: %w", &domain.ValidationError{Missing: []string{"token", "doc"}})
	}
	signer := &Controller{
		client:            c.client.WithSession(session.NewSigner(link.Token)),
		tracker:           NewMemoryTracker(),
		statusConcurrency: c.statusConcurrency,
		now:               c.now,
	}
	if err := signer.tracker.Put(link.DocumentID, Entry{Base: StateSent, UpdatedAt: c.now()}); err != nil {
		return nil, err
	}
	return signer, nil
}

// Session returns the session the controller acts for.
func (c *Controller) Session() *session.Session {
	return c.client.Session()
}

// NewDraft opens a creation form in DRAFTING.
func (c *Controller) NewDraft() *DraftHandle {
	return &DraftHandle{
		Draft: domain.Draft{Metadata: make(map[string]string)},
		state: StateDrafting,
	}
}

// CreateDocument validates and submits the draft. Validation failures return
// a *domain.ValidationError without any request. A service rejection returns
// the handle to DRAFTING; a network failure moves it to ERROR.
func (c *Controller) CreateDocument(ctx context.Context, h *DraftHandle) (int64, error) {
	from, ok := h.begin()
	if !ok {
		id, _ := h.DocumentID()
		return 0, &TransitionError{DocumentID: id, Action: "submit", From: from}
	}
	if err := h.Draft.Validate(); err != nil {
		h.settle(StateDrafting, 0, err)
		return 0, err
	}

	var rec domain.DocumentRecord
	if err := c.client.Send(ctx, http.MethodPost, "/documents/v1/generate/", h.Draft, &rec); err != nil {
		next := StateDrafting
		if transport.IsNetworkFailure(err) {
			next = StateError
		}
		h.settle(next, 0, err)
		return 0, err
	}
	if rec.ID <= 0 {
		err := &transport.ParseError{Path: "/documents/v1/generate/", Err: errors.New("response carries no document id")}
		h.settle(StateDrafting, 0, err)
		return 0, err
	}
	h.settle(StateGenerated, rec.ID, nil)
	if err := c.put(rec.ID, Entry{Base: StateGenerated}); err != nil {
		return rec.ID, err
	}
	c.mu.Lock()
	c.docs = append([]domain.DocumentRecord{rec}, c.docs...)
	c.mu.Unlock()
	slog.Debug("document generated", "document_id", rec.ID)
	return rec.ID, nil
}

// ListDocuments fetches every document owned by the session holder and
// replaces the cached list wholesale. Previously cached documents missing
// from the new list are no longer tracked.
func (c *Controller) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	var docs []domain.DocumentRecord
	if err := c.client.Send(ctx, http.MethodGet, "/documents/v1/list/", nil, &docs); err != nil {
		return nil, err
	}
	listed := make(map[int64]struct{}, len(docs))
	for _, rec := range docs {
		listed[rec.ID] = struct{}{}
		if err := c.observe(rec.ID, rec.Signature.IsSigned()); err != nil {
			return nil, err
		}
	}
	for _, rec := range c.Documents() {
		if _, ok := listed[rec.ID]; !ok {
			if err := c.forget(rec.ID); err != nil {
				return nil, err
			}
		}
	}
	c.mu.Lock()
	c.docs = docs
	c.mu.Unlock()
	return c.Documents(), nil
}

// Documents returns the cached list from the last ListDocuments.
func (c *Controller) Documents() []domain.DocumentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.DocumentRecord(nil), c.docs...)
}

// State returns the lifecycle state of a generated document, or NONE when
// it is not tracked.
func (c *Controller) State(id int64) State {
	e, ok, err := c.tracker.Get(id)
	if err != nil {
		slog.Warn("failed to read lifecycle entry", "document_id", id, "err", err)
		return StateNone
	}
	if !ok {
		return StateNone
	}
	return e.State()
}

// FetchOriginalPDF returns the generated PDF. The caller must Close it.
func (c *Controller) FetchOriginalPDF(ctx context.Context, id int64) (*transport.Blob, error) {
	return c.client.Fetch(ctx, docPath("/documents/v1/view/", id))
}

// FetchSignedPDF returns the signed PDF; an unsigned document yields a
// *transport.NotFoundError. The caller must Close it.
func (c *Controller) FetchSignedPDF(ctx context.Context, id int64) (*transport.Blob, error) {
	return c.client.Fetch(ctx, docPath("/signature/v1/view/", id))
}

// SendToSigner asks the service to deliver a signing link. Sending again is
// accepted and re-delivers the link.
func (c *Controller) SendToSigner(ctx context.Context, id int64) error {
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	if !e.baseIn(StateGenerated, StateSent) {
		return &TransitionError{DocumentID: id, Action: "send", From: e.State()}
	}
	if err := c.client.Send(ctx, http.MethodPost, docPath("/documents/v1/send/", id), nil, nil); err != nil {
		return c.fail(id, e, err)
	}
	e.Base = StateSent
	return c.succeed(id, e)
}

// SignDocument signs as the holder of a signer-scoped token. The document
// becomes SIGNED only after the service confirms.
func (c *Controller) SignDocument(ctx context.Context, id int64) error {
	if c.client.Session().Scope() != session.ScopeSigner {
		return ErrSignerScopeRequired
	}
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	if e.Base != StateSent {
		return &TransitionError{DocumentID: id, Action: "sign", From: e.State()}
	}
	if err := c.client.Send(ctx, http.MethodPost, docPath("/signature/v1/sign/", id), nil, nil); err != nil {
		return c.fail(id, e, err)
	}
	e.Base = StateSigned
	if err := c.succeed(id, e); err != nil {
		return err
	}
	c.markSigned(id, c.now())
	return nil
}

// SignatureStatus returns the server-authoritative signing status and moves
// a signed document to SIGNED. A document the service no longer knows is
// dropped from tracking.
func (c *Controller) SignatureStatus(ctx context.Context, id int64) (domain.SignatureStatus, error) {
	var status domain.SignatureStatus
	if err := c.client.Send(ctx, http.MethodGet, docPath("/signature/v1/status/", id), nil, &status); err != nil {
		if transport.IsNotFound(err) {
			if ferr := c.forget(id); ferr != nil {
				slog.Warn("failed to drop lifecycle entry", "document_id", id, "err", ferr)
			}
		}
		return domain.SignatureStatus{}, err
	}
	if err := c.observe(id, status.Signed); err != nil {
		return status, err
	}
	if at, ok := status.State().At(); ok {
		c.markSigned(id, at)
	}
	return status, nil
}

// RefreshStatuses checks every cached unsigned document concurrently and
// returns the statuses by id.
func (c *Controller) RefreshStatuses(ctx context.Context) (map[int64]domain.SignatureStatus, error) {
	var pending []int64
	for _, rec := range c.Documents() {
		if !rec.Signature.IsSigned() {
			pending = append(pending, rec.ID)
		}
	}
	var mu sync.Mutex
	out := make(map[int64]domain.SignatureStatus, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.statusConcurrency)
	for _, id := range pending {
		g.Go(func() error {
			status, err := c.SignatureStatus(gctx, id)
			if err != nil {
				return fmt.Errorf("status of document %d: %w", id, err)
			}
			mu.Lock()
			out[id] = status
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// SignerDocument returns document metadata as visible to its signer.
func (c *Controller) SignerDocument(ctx context.Context, id int64) (domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	if err := c.client.Send(ctx, http.MethodGet, docPath("/signature/v1/document/", id), nil, &rec); err != nil {
		return domain.DocumentRecord{}, err
	}
	if rec.Signature.IsSigned() {
		if err := c.observe(id, true); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// GenerateSummary requests summary generation. Completion is observed by
// polling GetSummary; until then the document stays SUMMARIZING. Signed
// documents may be summarized.
func (c *Controller) GenerateSummary(ctx context.Context, id int64) error {
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	if !e.baseIn(StateGenerated, StateSent, StateSigned) {
		return &TransitionError{DocumentID: id, Action: "summarize", From: e.State()}
	}
	prev := e.Summary
	e.Summary = SummaryRequested
	e.Failed = false
	if err := c.put(id, e); err != nil {
		return err
	}
	if err := c.client.Send(ctx, http.MethodPost, docPath("/summary/v1/generate/", id), nil, nil); err != nil {
		e.Summary = prev
		return c.fail(id, e, err)
	}
	return nil
}

// GetSummary returns the summary of id. ok is false while no summary has
// been generated; that is not an error.
func (c *Controller) GetSummary(ctx context.Context, id int64) (domain.Summary, bool, error) {
	var summary domain.Summary
	err := c.client.Send(ctx, http.MethodGet, docPath("/summary/v1/view/", id), nil, &summary)
	if transport.IsNotFound(err) {
		return domain.Summary{}, false, nil
	}
	if err != nil {
		return domain.Summary{}, false, err
	}
	if summary.IsEmpty() {
		return domain.Summary{}, false, nil
	}
	e, ok, err := c.tracker.Get(id)
	if err != nil {
		return summary, true, err
	}
	if ok && e.Summary != SummaryAvailable {
		e.Summary = SummaryAvailable
		if err := c.put(id, e); err != nil {
			return summary, true, err
		}
	}
	return summary, true, nil
}

// WaitForSummary polls GetSummary every interval until a summary exists or
// ctx is done.
func (c *Controller) WaitForSummary(ctx context.Context, id int64, interval time.Duration) (domain.Summary, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		summary, ok, err := c.GetSummary(ctx, id)
		if err != nil {
			return domain.Summary{}, err
		}
		if ok {
			return summary, nil
		}
		select {
		case <-ctx.Done():
			return domain.Summary{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// entry returns the tracked entry of id, seeding it from the cached list or
// the service status when the document has not been seen yet.
func (c *Controller) entry(ctx context.Context, id int64) (Entry, error) {
	e, ok, err := c.tracker.Get(id)
	if err != nil {
		return Entry{}, err
	}
	if ok {
		return e, nil
	}
	if rec, found := c.cached(id); found {
		e = Entry{Base: StateGenerated}
		if rec.Signature.IsSigned() {
			e.Base = StateSigned
		}
		return e, c.put(id, e)
	}
	var status domain.SignatureStatus
	if err := c.client.Send(ctx, http.MethodGet, docPath("/signature/v1/status/", id), nil, &status); err != nil {
		return Entry{}, err
	}
	e = Entry{Base: StateGenerated}
	if status.Signed {
		e.Base = StateSigned
	}
	return e, c.put(id, e)
}

// observe records a server-reported signing fact without losing summary
// progress.
func (c *Controller) observe(id int64, signed bool) error {
	e, ok, err := c.tracker.Get(id)
	if err != nil {
		return err
	}
	switch {
	case !ok:
		e = Entry{Base: StateGenerated}
	case signed && e.Base != StateSigned:
	default:
		return nil
	}
	if signed {
		e.Base = StateSigned
		e.Failed = false
	}
	return c.put(id, e)
}

func (c *Controller) succeed(id int64, e Entry) error {
	e.Failed = false
	e.LastError = ""
	return c.put(id, e)
}

// fail records err against id and returns it. Only network failures move
// the document to ERROR; other rejections leave the state as it was.
func (c *Controller) fail(id int64, e Entry, err error) error {
	e.LastError = err.Error()
	if transport.IsNetworkFailure(err) {
		e.Failed = true
	}
	if perr := c.put(id, e); perr != nil {
		slog.Error("failed to record lifecycle failure", "document_id", id, "err", perr)
	}
	return err
}

func (c *Controller) put(id int64, e Entry) error {
	e.UpdatedAt = c.now().UTC()
	if err := c.tracker.Put(id, e); err != nil {
		return fmt.Errorf("track document %d: %w", id, err)
	}
	slog.Debug("lifecycle state", "document_id", id, "state", e.State())
	return nil
}

// forget removes id from the tracker and the cached list.
func (c *Controller) forget(id int64) error {
	if err := c.tracker.Delete(id); err != nil {
		return fmt.Errorf("untrack document %d: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.docs {
		if c.docs[i].ID == id {
			c.docs = append(c.docs[:i:i], c.docs[i+1:]...)
			break
		}
	}
	slog.Debug("document untracked", "document_id", id)
	return nil
}

func (c *Controller) cached(id int64) (domain.DocumentRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rec := range c.docs {
		if rec.ID == id {
			return rec, true
		}
	}
	return domain.DocumentRecord{}, false
}

// markSigned updates the cached record until the next list refresh.
func (c *Controller) markSigned(id int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.docs {
		if c.docs[i].ID == id && !c.docs[i].Signature.IsSigned() {
			c.docs[i].Signature = domain.SignedAt(at)
		}
	}
}

func docPath(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10) + "/"
}
