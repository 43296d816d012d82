package cartsync

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tranvanhung2003/digital-world-cart/client"
	"github.com/tranvanhung2003/digital-world-cart/domain"
)

// RemoteCart is the slice of the Cart API client the orchestrator consumes.
type RemoteCart interface {
	Fetch(ctx context.Context) (*domain.Cart, error)
	AddItem(ctx context.Context, item domain.CartItem) (*domain.Cart, error)
	Merge(ctx context.Context) (*domain.Cart, error)
}

type MergeState string

const (
	StateIdle       MergeState = "IDLE"
	StateMerging    MergeState = "MERGING"
	StateFinalizing MergeState = "FINALIZING"
)

// MergeSummary is what a merge attempt accomplished. MergedUnits feeds the
// "N items added to your cart" notification; skipped lines are logged only.
type MergeSummary struct {
	MergedUnits  int
	SkippedLines int
}

// Notifier receives the end-of-merge summary. Only called when at least one
// unit was merged.
type Notifier func(summary MergeSummary)

// Orchestrator reconciles the local cart into the remote cart once per login.
//
// The per-item pushes are issued strictly in snapshot order, one at a time:
// the server increments quantities on a single cart document, and a defined
// request order avoids lost updates between increments for the same line.
type Orchestrator struct {
	session *Session
	local   *LocalStore
	remote  RemoteCart
	notify  Notifier
	log     logrus.FieldLogger

	mu      sync.Mutex
	state   MergeState
	current *domain.Cart
}

func NewOrchestrator(session *Session, local *LocalStore, remote RemoteCart, notify Notifier, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		session: session,
		local:   local,
		remote:  remote,
		notify:  notify,
		log:     log,
		state:   StateIdle,
	}
}

// State reports the current phase of the merge routine.
func (o *Orchestrator) State() MergeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CurrentCart is the last published server-authoritative cart, or nil if no
// merge has completed yet.
func (o *Orchestrator) CurrentCart() *domain.Cart {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// OnLogout clears the published cart and, per product policy, the local guest
// cart as well: the next anonymous session starts empty.
func (o *Orchestrator) OnLogout() {
	o.session.Logout()
	o.local.Clear()

	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
}

// SyncOnLogin runs the merge routine if a login signal is pending. The signal
// is consumed up front, so the merge is attempted at most once per login
// whatever the outcome.
//
// Per-item failures are contained: a line the server rejects (out of stock,
// product gone, transient network trouble) is logged and skipped, and the rest
// of the snapshot still merges. Only loss of authentication aborts the whole
// routine; in that case the local cart is preserved for a retry after
// re-login. Every other outcome ends with the local cart cleared and the
// final remote cart published.
func (o *Orchestrator) SyncOnLogin(ctx context.Context) (MergeSummary, error) {
	var summary MergeSummary

	userID, ok := o.session.Authenticated()
	if !ok {
		return summary, nil
	}
	if !o.session.ConsumeLoginSignal() {
		return summary, nil
	}

	o.setState(StateMerging)
	defer o.setState(StateIdle)

	log := o.log.WithField("user_id", userID)

	snapshot := o.local.Snapshot()

	// last successful server response; the finalize step falls back to it if
	// the authoritative re-fetch fails
	var last *domain.Cart

	if len(snapshot) > 0 {
		for _, item := range snapshot {
			cart, err := o.remote.AddItem(ctx, item)
			if err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					log.WithError(err).Error("authentication lost mid-merge, keeping local cart")
					return summary, err
				}
				summary.SkippedLines++
				log.WithError(err).WithField("product_id", item.ProductID).
					Warn("skipping cart line")
				continue
			}
			last = cart
			summary.MergedUnits += item.Quantity
		}
	} else {
		// Nothing staged locally: the guest cart, if any, lived server-side
		// under the session cookie. One merge call covers it.
		cart, err := o.remote.Merge(ctx)
		if err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				log.WithError(err).Error("authentication lost during merge")
				return summary, err
			}
			log.WithError(err).Warn("server-side cart merge failed")
		} else {
			last = cart
		}
	}

	o.setState(StateFinalizing)

	final, err := o.remote.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("final cart fetch failed, falling back to last merge response")
		final = last
	}
	if final != nil {
		o.publish(final)
	}

	o.local.Clear()

	if o.notify != nil && summary.MergedUnits > 0 {
		o.notify(summary)
	}

	return summary, nil
}

func (o *Orchestrator) publish(cart *domain.Cart) {
	o.mu.Lock()
	o.current = cart
	o.mu.Unlock()
}

func (o *Orchestrator) setState(state MergeState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}
