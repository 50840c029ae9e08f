// Command billingsync-replay signs recorded provider notifications and posts
// them to a billingsync endpoint, optionally shuffled and duplicated to
// exercise out-of-order and redelivery handling.
//
// Usage:
//
//	billingsync-replay -url http://localhost:8080/webhooks/billing -secret whsec_... -shuffle -duplicate 2 fixtures/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
	"github.com/dmitrymomot/billingsync/pkg/subscription"
	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

var errUsage = errors.New("usage error")

type options struct {
	url       string
	provider  string
	secret    string
	shuffle   bool
	seed      uint64
	duplicate int
	retries   int
	timeout   time.Duration
	paths     []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(logger.WithTextFormatter(), logger.WithAttr(logger.Component("replay")))
	if err := run(ctx, os.Args[1:], os.Stderr, log); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.LogAttrs(ctx, slog.LevelError, "replay failed", logger.Error(err))
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("billingsync-replay", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.url, "url", "http://localhost:8080/webhooks/billing", "notification endpoint")
	fs.StringVar(&o.provider, "provider", subscription.ProviderStripe, "signature scheme: stripe or paddle")
	fs.StringVar(&o.secret, "secret", os.Getenv("BILLING_WEBHOOK_SECRET"), "signing secret")
	fs.BoolVar(&o.shuffle, "shuffle", false, "deliver fixtures in random order")
	fs.Uint64Var(&o.seed, "seed", 0, "shuffle seed; 0 picks one")
	fs.IntVar(&o.duplicate, "duplicate", 1, "deliver every fixture this many times")
	fs.IntVar(&o.retries, "retries", 3, "retry attempts per delivery")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "per-attempt timeout")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.paths = fs.Args()

	switch {
	case len(o.paths) == 0:
		return o, fmt.Errorf("%w: at least one fixture file or directory is required", errUsage)
	case o.secret == "":
		return o, fmt.Errorf("%w: -secret or BILLING_WEBHOOK_SECRET is required", errUsage)
	case o.duplicate < 1:
		return o, fmt.Errorf("%w: -duplicate must be at least 1", errUsage)
	}
	return o, nil
}

func run(ctx context.Context, args []string, output io.Writer, log *slog.Logger) error {
	o, err := parseFlags(args, output)
	if err != nil {
		return err
	}

	signing, err := signerFor(o.provider, o.secret)
	if err != nil {
		return err
	}

	fixtures, err := loadFixtures(o.paths...)
	if err != nil {
		return err
	}
	queue := expand(fixtures, o.duplicate)
	if o.shuffle {
		seed := o.seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		shuffle(queue, seed)
		log.LogAttrs(ctx, slog.LevelInfo, "shuffled deliveries", slog.Uint64("seed", seed))
	}

	sender := webhook.NewSender()
	var failed int
	for i, f := range queue {
		err := sender.Send(ctx, o.url, f.Payload,
			signing,
			webhook.WithHeader(requestid.Header, fmt.Sprintf("replay-%d", i+1)),
			webhook.WithTimeout(o.timeout),
			webhook.WithExponentialRetry(o.retries, 500*time.Millisecond, 10*time.Second),
		)
		attrs := []slog.Attr{slog.String("fixture", f.Name), logger.EventID(f.EventID)}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.LogAttrs(ctx, slog.LevelWarn, "delivery failed", append(attrs, logger.Error(err))...)
			continue
		}
		log.LogAttrs(ctx, slog.LevelInfo, "delivered", attrs...)
	}

	log.LogAttrs(ctx, slog.LevelInfo, "replay finished",
		slog.Int("deliveries", len(queue)),
		slog.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(queue))
	}
	return nil
}
