package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job est exécuté à chaque déclenchement.
type Job func(ctx context.Context, trigger time.Time) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse valide une expression cron 5 champs (ex: "0 6 * * *") ou un descripteur ("@daily", "@every 1h").
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Scheduler relance un Job selon une expression cron. Un déclenchement est
// ignoré si l'exécution précédente n'est pas terminée.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	logger *slog.Logger
}

// Start démarre le scheduler ; il s'arrête quand ctx est annulé ou via Stop.
func Start(ctx context.Context, spec string, loc *time.Location, job Job, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if _, err := Parse(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s := &Scheduler{cron: c, spec: strings.TrimSpace(spec), logger: logger}

	if _, err := c.AddFunc(s.spec, func() {
		trigger := time.Now().In(loc)
		s.logger.Info("scheduled run", "trigger", trigger.Format(time.RFC3339))
		if err := job(ctx, trigger); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}

	c.Start()
	s.logger.Info("scheduler started", "cron", s.spec, "next", s.Next().Format("Mon Jan 2 15:04"))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s, nil
}

// Next retourne la prochaine date de déclenchement.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop arrête les déclenchements et attend la fin du job en cours.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
