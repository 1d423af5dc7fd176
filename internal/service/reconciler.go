package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/tracing"
)

// State is a reconciliation state.
type State string

const (
	StateAwaitingVerification State = "awaiting_verification"
	StateAwaitingBackup       State = "awaiting_backup"
	StateWriting              State = "writing"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// FailureKind says why a reconciliation ended in StateFailed.
type FailureKind string

const (
	KindNone                FailureKind = ""
	KindMissingSession      FailureKind = "missing_session"
	KindMissingContact      FailureKind = "missing_contact"
	KindSessionNotFound     FailureKind = "session_not_found"
	KindSessionExpired      FailureKind = "session_expired"
	KindPaymentIncomplete   FailureKind = "payment_incomplete"
	KindProviderUnavailable FailureKind = "provider_unavailable"
	KindNoCartBackup        FailureKind = "no_cart_backup"
	KindCacheUnavailable    FailureKind = "cache_unavailable"
	KindOrderWriteFailed    FailureKind = "order_write_failed"
)

// NeedsFollowUp reports whether the shopper may have paid without an order
// being recorded.
func (k FailureKind) NeedsFollowUp() bool {
	switch k {
	case KindProviderUnavailable, KindNoCartBackup, KindCacheUnavailable, KindOrderWriteFailed:
		return true
	}
	return false
}

const doneMemoTTL = time.Hour

var errMissingContact = errors.New("missing contact in return query")

// ReturnParams is what the shopper brings back from the provider.
type ReturnParams struct {
	ShopperSessionID  string
	ProviderSessionID string
	Contact           domain.Contact
}

// ParseReturnQuery reads the success URL query. Blank values stay blank and
// are rejected by Reconcile.
func ParseReturnQuery(shopperSessionID string, q url.Values) ReturnParams {
	return ReturnParams{
		ShopperSessionID:  shopperSessionID,
		ProviderSessionID: strings.TrimSpace(q.Get(QuerySessionID)),
		Contact: domain.Contact{
			Email: strings.TrimSpace(q.Get(QueryEmail)),
			Phone: strings.TrimSpace(q.Get(QueryMobile)),
		},
	}
}

// Outcome is the terminal result of a reconciliation.
type Outcome struct {
	State        State
	Kind         FailureKind
	Confirmation *domain.PaymentConfirmation
	Order        *domain.Order
	// AlreadyRecorded is set when the order existed before this run.
	AlreadyRecorded bool
	Err             error
}

// PaymentConfirmed reports whether the provider confirmed the payment.
func (o Outcome) PaymentConfirmed() bool {
	return o.Confirmation != nil
}

// OrderRecorded reports whether an order exists for the payment.
func (o Outcome) OrderRecorded() bool {
	return o.State == StateDone
}

// SessionVerifier is satisfied by *Verifier.
type SessionVerifier interface {
	Verify(ctx context.Context, providerSessionID string) (*domain.PaymentConfirmation, error)
}

// Reconciler turns a verified payment plus the cart backup into exactly one
// order. Concurrent visits of one shopper session for the same provider
// session share one run, and a completed run is remembered so a repeat visit
// never writes again. Only the shopper session that started the checkout can
// have its backup turned into the order.
type Reconciler struct {
	verifier SessionVerifier
	backups  repository.BackupCache
	orders   repository.OrderRepository
	carts    CartClearer
	events   EventPublisher
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	inflight singleflight.Group
	done     *doneMemo
}

// NewReconciler creates an order reconciler.
func NewReconciler(
	verifier SessionVerifier,
	backups repository.BackupCache,
	orders repository.OrderRepository,
	carts CartClearer,
	events EventPublisher,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		backups:  backups,
		orders:   orders,
		carts:    carts,
		events:   events,
		logger:   logger,
		tracer:   tracing.Tracer("github.com/utafrali/storefront/internal/service"),
		now:      time.Now,
		done:     newDoneMemo(doneMemoTTL),
	}
}

// Reconcile drives one return visit to a terminal state. It never returns an
// error; failures are reported in the Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, p ReturnParams) Outcome {
	if p.ProviderSessionID == "" {
		return r.finish(ctx, p, Outcome{State: StateFailed, Kind: KindMissingSession, Err: domain.ErrMissingSession}, time.Now())
	}
	if p.Contact.Email == "" || p.Contact.Phone == "" {
		return r.finish(ctx, p, Outcome{State: StateFailed, Kind: KindMissingContact, Err: errMissingContact}, time.Now())
	}

	key := runKey(p)
	if out, ok := r.done.get(key); ok {
		r.logger.DebugContext(ctx, "reconciliation already done",
			slog.String("checkout_session_id", p.ProviderSessionID),
		)
		return out
	}

	v, _, _ := r.inflight.Do(key, func() (any, error) {
		// A run that finished while this caller waited for the group.
		if out, ok := r.done.get(key); ok {
			return out, nil
		}
		start := time.Now()
		out := r.run(ctx, p)
		return r.finish(ctx, p, out, start), nil
	})
	return v.(Outcome)
}

// runKey scopes runs and remembered outcomes to one visitor of one provider
// session. A visitor who did not start the checkout never shares the payer's
// outcome.
func runKey(p ReturnParams) string {
	return p.ShopperSessionID + "|" + p.ProviderSessionID
}

func (r *Reconciler) run(ctx context.Context, p ReturnParams) Outcome {
	ctx, span := r.tracer.Start(ctx, "reconcile", trace.WithAttributes(
		attribute.String("checkout.session_id", p.ProviderSessionID),
	))
	defer span.End()

	// awaiting_verification
	conf, err := r.verify(ctx, p.ProviderSessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Outcome{State: StateFailed, Kind: verifyFailureKind(err), Err: err}
	}
	span.SetAttributes(attribute.String("payment.reference", conf.PaymentReference))

	// The backup of another shopper session must never be read or consumed.
	if conf.ClientReference != "" && conf.ClientReference != p.ShopperSessionID {
		r.logger.WarnContext(ctx, "return visit from a shopper session that did not start the checkout",
			slog.String("checkout_session_id", conf.ProviderSessionID),
			slog.String("shopper_session", p.ShopperSessionID),
		)
		return r.resolveWithoutBackup(ctx, conf)
	}

	// awaiting_backup
	backup, err := r.loadBackup(ctx, p.ShopperSessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Outcome{State: StateFailed, Kind: KindCacheUnavailable, Confirmation: conf, Err: err}
	}
	if backup == nil || backup.Snapshot.IsEmpty() {
		return r.resolveWithoutBackup(ctx, conf)
	}
	if backup.CheckoutSessionID != conf.ProviderSessionID {
		// The backup belongs to a later checkout and stays for that one.
		r.logger.WarnContext(ctx, "cart backup belongs to another checkout session",
			slog.String("checkout_session_id", conf.ProviderSessionID),
			slog.String("backup_session_id", backup.CheckoutSessionID),
		)
		return r.resolveWithoutBackup(ctx, conf)
	}

	// writing
	order := domain.NewOrder(conf, backup.Snapshot, p.Contact, r.now())
	order.ShopperSession = p.ShopperSessionID

	saved, created, err := r.writeOrder(ctx, order)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Outcome{State: StateFailed, Kind: KindOrderWriteFailed, Confirmation: conf, Err: err}
	}

	if created {
		if saved.AmountPaid != saved.TotalPrice {
			r.logger.WarnContext(ctx, "authorized amount differs from cart total, order flagged for review",
				slog.String("order_id", saved.ID),
				slog.String("payment_reference", saved.PaymentReference),
				slog.Int64("amount_paid", saved.AmountPaid),
				slog.Int64("total_price", saved.TotalPrice),
			)
		}
		if err := r.events.PublishOrderCreated(ctx, saved); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish order.created event",
				slog.String("order_id", saved.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// done
	if err := r.backups.Delete(ctx, p.ShopperSessionID); err != nil {
		r.logger.WarnContext(ctx, "failed to delete cart backup",
			slog.String("shopper_session", p.ShopperSessionID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.carts.Clear(ctx, p.ShopperSessionID); err != nil {
		r.logger.WarnContext(ctx, "failed to clear cart after order",
			slog.String("shopper_session", p.ShopperSessionID),
			slog.String("error", err.Error()),
		)
	}

	return Outcome{State: StateDone, Confirmation: conf, Order: saved, AlreadyRecorded: !created}
}

func (r *Reconciler) verify(ctx context.Context, id string) (*domain.PaymentConfirmation, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.verify")
	defer span.End()

	conf, err := r.verifier.Verify(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return conf, err
}

func (r *Reconciler) loadBackup(ctx context.Context, shopperSessionID string) (*domain.CartBackup, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.load_backup")
	defer span.End()

	backup, err := r.backups.Get(ctx, shopperSessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read cart backup: %w", err)
	}
	span.SetAttributes(attribute.Bool("backup.present", backup != nil))
	return backup, nil
}

// resolveWithoutBackup handles a visit with no backup. The backup is removed
// once an order is written, so a repeat visit finds the order instead.
func (r *Reconciler) resolveWithoutBackup(ctx context.Context, conf *domain.PaymentConfirmation) Outcome {
	existing, err := r.orders.GetByPaymentReference(ctx, conf.PaymentReference)
	switch {
	case err == nil:
		return Outcome{State: StateDone, Confirmation: conf, Order: existing, AlreadyRecorded: true}
	case errors.Is(err, apperrors.ErrNotFound):
		return Outcome{State: StateFailed, Kind: KindNoCartBackup, Confirmation: conf, Err: domain.ErrNoCartBackup}
	default:
		return Outcome{State: StateFailed, Kind: KindOrderWriteFailed, Confirmation: conf, Err: fmt.Errorf("look up order: %w", err)}
	}
}

// writeOrder inserts the order. A conflicting write by another run resolves
// to that run's order.
func (r *Reconciler) writeOrder(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.write_order")
	defer span.End()

	saved, created, err := r.orders.CreateOrder(ctx, order)
	if errors.Is(err, domain.ErrOrderWriteConflict) {
		existing, getErr := r.orders.GetByPaymentReference(ctx, order.PaymentReference)
		if getErr != nil {
			span.RecordError(err)
			return nil, false, fmt.Errorf("resolve order conflict: %w", errors.Join(err, getErr))
		}
		return existing, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("order.created", created))
	return saved, created, nil
}

// finish records a terminal outcome exactly once per run.
func (r *Reconciler) finish(ctx context.Context, p ReturnParams, out Outcome, start time.Time) Outcome {
	reconcileDuration.Observe(time.Since(start).Seconds())
	reconciliations.WithLabelValues(string(out.State), string(out.Kind)).Inc()

	if out.State == StateDone {
		r.done.put(runKey(p), out)
		r.logger.InfoContext(ctx, "order reconciled",
			slog.String("checkout_session_id", p.ProviderSessionID),
			slog.String("order_id", out.Order.ID),
			slog.String("payment_reference", out.Order.PaymentReference),
			slog.Bool("already_recorded", out.AlreadyRecorded),
		)
		return out
	}

	attrs := []any{
		slog.String("checkout_session_id", p.ProviderSessionID),
		slog.String("failure_kind", string(out.Kind)),
	}
	if out.Confirmation != nil {
		attrs = append(attrs,
			slog.String("payment_reference", out.Confirmation.PaymentReference),
			slog.Int64("amount_authorized", out.Confirmation.AmountAuthorized),
		)
	}
	if out.Err != nil {
		attrs = append(attrs, slog.String("error", out.Err.Error()))
	}

	if !out.Kind.NeedsFollowUp() {
		r.logger.WarnContext(ctx, "reconciliation failed", attrs...)
		return out
	}

	r.logger.ErrorContext(ctx, "reconciliation failed, payment may be unrecorded", attrs...)

	data := event.ReconciliationFailedData{
		ShopperSession:    p.ShopperSessionID,
		CheckoutSessionID: p.ProviderSessionID,
		FailureKind:       string(out.Kind),
	}
	if out.Confirmation != nil {
		data.PaymentReference = out.Confirmation.PaymentReference
		data.AmountAuthorized = out.Confirmation.AmountAuthorized
	}
	if out.Err != nil {
		data.Detail = out.Err.Error()
	}
	if err := r.events.PublishReconciliationFailed(ctx, data); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish reconciliation.failed event",
			slog.String("checkout_session_id", p.ProviderSessionID),
			slog.String("error", err.Error()),
		)
	}
	return out
}

func verifyFailureKind(err error) FailureKind {
	switch {
	case errors.Is(err, domain.ErrMissingSession):
		return KindMissingSession
	case errors.Is(err, domain.ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, domain.ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, domain.ErrPaymentIncomplete):
		return KindPaymentIncomplete
	default:
		return KindProviderUnavailable
	}
}
