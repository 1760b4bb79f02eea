package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"attune/internal/dashboard"
	"attune/internal/domain"
	"attune/internal/momentum"
	"attune/internal/repo"
	"attune/internal/seed"
)

// RecordCheckin stores the day's checkin, replacing an earlier one for the same date.
func (e Engine) RecordCheckin(ctx context.Context, userID string, c domain.Checkin) (domain.Checkin, error) {
	if c.Date == "" {
		c.Date = e.now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, c.Date); err != nil {
		return domain.Checkin{}, invalid("date must be YYYY-MM-DD")
	}
	if c.MoodScore < 0 || c.MoodScore > 10 {
		return domain.Checkin{}, invalid("moodScore must be between 0 and 10")
	}
	if c.EnergyLevel < 0 || c.EnergyLevel > 10 {
		return domain.Checkin{}, invalid("energyLevel must be between 0 and 10")
	}
	if c.TasksCompleted < 0 || c.TasksTotal < 0 || c.TasksCompleted > c.TasksTotal {
		return domain.Checkin{}, invalid("tasksCompleted must be between 0 and tasksTotal")
	}
	if err := e.ensureUser(ctx, userID); err != nil {
		return domain.Checkin{}, err
	}
	c.ID = e.newID()
	c.UserID = userID
	c.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertCheckin(ctx, c); err != nil {
		return domain.Checkin{}, fmt.Errorf("save checkin: %w", err)
	}
	return c, nil
}

// RateIntervention records how helpful an intervention was, 1 to 5.
func (e Engine) RateIntervention(ctx context.Context, userID, interventionID string, rating int, feedback *string) (domain.Intervention, error) {
	if rating < 1 || rating > 5 {
		return domain.Intervention{}, invalid("rating must be between 1 and 5")
	}
	iv, err := e.Repo.GetIntervention(ctx, interventionID)
	if err != nil {
		return domain.Intervention{}, fmt.Errorf("intervention %s: %w", interventionID, err)
	}
	if iv.UserID != userID {
		return domain.Intervention{}, fmt.Errorf("%w: intervention %s belongs to another user", ErrForbidden, interventionID)
	}
	if err := e.Repo.RateIntervention(ctx, interventionID, userID, rating, feedback); err != nil {
		return domain.Intervention{}, err
	}
	iv.Rating = &rating
	iv.Feedback = feedback
	return iv, nil
}

func (e Engine) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := e.Repo.LatestProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile for %s: %w", userID, err)
	}
	return p, nil
}

// Journal lists the newest pipeline journal entries of a user.
func (e Engine) Journal(ctx context.Context, userID string, limit int) ([]domain.Event, error) {
	evts, err := e.Events.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}

// Dashboard builds the trend, momentum and annotation view over the last
// momentum.Window checkins. A user without checkins has no dashboard.
func (e Engine) Dashboard(ctx context.Context, userID string) (dashboard.Dashboard, error) {
	var in dashboard.Input
	in.UserID = userID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Checkins, err = e.Repo.RecentCheckins(gctx, userID, momentum.Window)
		return err
	})
	g.Go(func() error {
		var err error
		in.Interventions, err = e.Repo.ListInterventions(gctx, userID, 100)
		return err
	})
	g.Go(func() error {
		var err error
		in.Hypotheses, err = e.Repo.ListHypotheses(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		in.PlanDates, err = e.Repo.PlanDates(gctx, userID)
		return err
	})
	g.Go(func() error {
		p, err := e.Repo.LatestProfile(gctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		in.Profile = &p
		return nil
	})
	if err := g.Wait(); err != nil {
		return dashboard.Dashboard{}, err
	}
	if len(in.Checkins) == 0 {
		return dashboard.Dashboard{}, fmt.Errorf("no checkins for %s: %w", userID, repo.ErrNotFound)
	}
	return dashboard.Build(in), nil
}

// GuestSession is the demo account with a signed token.
type GuestSession struct {
	User       domain.User
	Token      string
	HasProfile bool
}

// Guest prepares the demo account and signs a token for it.
func (e Engine) Guest(ctx context.Context) (GuestSession, error) {
	u, err := seed.Guest(ctx, e.Repo, e.now())
	if err != nil {
		return GuestSession{}, err
	}
	token, err := e.Auth.Issue(u.ID)
	if err != nil {
		return GuestSession{}, err
	}
	hasProfile := true
	if _, err := e.Repo.LatestProfile(ctx, u.ID); errors.Is(err, repo.ErrNotFound) {
		hasProfile = false
	} else if err != nil {
		return GuestSession{}, err
	}
	return GuestSession{User: u, Token: token, HasProfile: hasProfile}, nil
}
