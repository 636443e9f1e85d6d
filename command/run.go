package command

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2y-d5l/forge/retry"
)

type runConfig struct {
	retries      int
	backoff      retry.Backoff
	allowFailure bool
	logger       logrus.FieldLogger
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithRetry re-runs a failing or timed-out process up to n more times.
func WithRetry(n int) RunOption {
	return func(c *runConfig) { c.retries = n }
}

// WithBackoff waits between retries.
func WithBackoff(b retry.Backoff) RunOption {
	return func(c *runConfig) { c.backoff = b }
}

// AllowFailure makes Run return a failing Result without an error.
func AllowFailure() RunOption {
	return func(c *runConfig) { c.allowFailure = true }
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

var errFalsy = errors.New("command: unsuccessful result")

// Run executes the process, retrying while the result is unsuccessful. If
// the final result is still unsuccessful it returns an *ExitError or a
// *TimeoutError, unless AllowFailure was given.
func Run(ctx context.Context, args Args, opts ...RunOption) (Result, error) {
	cfg := runConfig{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger.WithField("cmd", args.String())

	var res Result
	attempts := 0
	err := retry.Do(ctx, retry.Policy{
		MaxRetries:  cfg.retries,
		Backoff:     cfg.backoff,
		ShouldRetry: retry.On(errFalsy),
		OnRetry: func(attempt int, _ error) {
			log.WithField("retry", attempt+1).Infof("retrying command (%d/%d)", attempt+1, cfg.retries)
		},
	}, func(ctx context.Context, _ int) error {
		attempts++
		log.Debug("executing command")

		r, err := Exec(ctx, args)
		res = r
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"result":   r.Describe(),
			"duration": r.Duration.Round(time.Millisecond),
		}).Info("executed command")
		if !r.OK() {
			return errFalsy
		}
		return nil
	})
	res.Attempts = attempts

	switch {
	case err == nil:
		return res, nil
	case !errors.Is(err, errFalsy):
		return res, err
	case cfg.allowFailure:
		return res, nil
	case res.TimedOut():
		return res, &TimeoutError{Result: res}
	default:
		return res, &ExitError{Result: res}
	}
}
