package delivery

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/metrics"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// SubscriptionLister is the slice of the store the router reads subscribers from.
type SubscriptionLister interface {
	ListSubscriptionsBySKU(ctx context.Context, sku string) ([]storage.Subscription, error)
}

// RouterOptions tunes fan-out behaviour.
type RouterOptions struct {
	Concurrency int
	SendTimeout time.Duration
	Sinks       []Sink
	Metrics     metrics.Recorder
	Now         func() time.Time
}

// Router resolves events to destinations and performs the sends.
type Router struct {
	transport   Transport
	gate        *alerting.CooldownGate
	subs        SubscriptionLister
	sinks       []Sink
	metrics     metrics.Recorder
	now         func() time.Time
	concurrency int
	sendTimeout time.Duration
	logger      zerolog.Logger
}

// NewRouter wires the router.
func NewRouter(transport Transport, gate *alerting.CooldownGate, subs SubscriptionLister, opts RouterOptions, logger zerolog.Logger) *Router {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		transport:   transport,
		gate:        gate,
		subs:        subs,
		sinks:       opts.Sinks,
		metrics:     opts.Metrics,
		now:         opts.Now,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
		logger:      logger.With().Str("component", "router").Logger(),
	}
}

// DispatchBroadcast sends the event to its broadcast channel. It reports
// whether the send succeeded; every failure is absorbed here.
func (r *Router) DispatchBroadcast(ctx context.Context, ev alerting.Event, rs settings.Resolved) bool {
	kind := ev.Kind.String()
	log := r.logger.With().Str("kind", kind).Str("product_id", ev.Product.ID).Str("sku", ev.Product.SKU).Logger()

	ks := rs.Kind(ev.Kind)
	if !ks.Enabled {
		r.metrics.IncSuppressed(kind, metrics.ReasonDisabled)
		log.Debug().Msg("alert kind disabled")
		return false
	}
	if ks.ChannelID == "" {
		r.metrics.IncSuppressed(kind, metrics.ReasonNoChannel)
		log.Warn().Msg("no channel configured for alert kind")
		return false
	}

	now := r.now()
	ok, err := r.gate.MayFire(ctx, ev.Product.ID, ev.Kind, rs.Cooldown, now)
	if err != nil {
		r.metrics.IncSuppressed(kind, metrics.ReasonGateError)
		log.Error().Err(err).Msg("cooldown lookup failed")
		return false
	}
	if !ok {
		r.metrics.IncSuppressed(kind, metrics.ReasonCooldown)
		log.Debug().Dur("cooldown", rs.Cooldown).Msg("cooldown active")
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	err = r.transport.SendToChannel(sendCtx, ks.ChannelID, Render(ev, now))
	cancel()
	if err != nil {
		r.metrics.IncSuppressed(kind, metrics.ReasonTransport)
		log.Warn().Err(err).Str("channel_id", ks.ChannelID).Msg("broadcast send failed")
		return false
	}

	if err := r.gate.Record(ctx, ev.Product.ID, ev.Kind, now); err != nil {
		log.Error().Err(err).Msg("alert delivered but cooldown not recorded")
	}
	r.metrics.IncDelivered(kind)
	log.Info().Str("channel_id", ks.ChannelID).Msg("alert sent")

	r.publish(ctx, NewRecord(ev, ks.ChannelID, now))
	return true
}

// DispatchSubscriptions sends the event to every subscriber of its SKU and
// returns the number of successful sends. Subscriber sends carry no cooldown
// of their own; a disabled kind reaches nobody.
func (r *Router) DispatchSubscriptions(ctx context.Context, ev alerting.Event, rs settings.Resolved) int {
	if !ev.Kind.Subscribable() || !rs.Kind(ev.Kind).Enabled {
		return 0
	}
	log := r.logger.With().Str("kind", ev.Kind.String()).Str("sku", ev.Product.SKU).Logger()

	subs, err := r.subs.ListSubscriptionsBySKU(ctx, catalog.NormalizeSKU(ev.Product.SKU))
	if err != nil {
		log.Error().Err(err).Msg("list subscriptions failed")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	msg := Render(ev, r.now())
	var delivered atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := r.sendToSubscriber(ctx, sub, msg); err != nil {
				r.metrics.IncSubscriptionSend("failed")
				log.Warn().Err(err).Str("user_id", sub.UserID).Str("mode", string(sub.Mode)).Msg("subscription send failed")
				return nil
			}
			r.metrics.IncSubscriptionSend("ok")
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}

func (r *Router) sendToSubscriber(ctx context.Context, sub storage.Subscription, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	switch sub.Mode {
	case storage.DeliveryDirect:
		return r.transport.SendToUser(sendCtx, sub.UserID, msg)
	case storage.DeliveryChannel:
		if sub.ChannelID == "" {
			return fmt.Errorf("%w: channel subscription without channel id", ErrRejected)
		}
		return r.transport.SendToChannel(sendCtx, sub.ChannelID, msg)
	default:
		return fmt.Errorf("%w: unknown delivery mode %q", ErrRejected, sub.Mode)
	}
}

func (r *Router) publish(ctx context.Context, rec Record) {
	for _, sink := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		if err := sink.Publish(sinkCtx, rec); err != nil {
			r.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("sink publish failed")
		}
		cancel()
	}
}

// Close releases the sinks.
func (r *Router) Close() error {
	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
