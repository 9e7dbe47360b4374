package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/events"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/location"
	"github.com/zsprackett/devradar/internal/searchapi"
)

var (
	// ErrNoLocation is returned by Search before a position is known.
	ErrNoLocation = errors.New("location not available")
	// ErrSuperseded is returned by Search when a newer search was issued
	// before this one completed. Its result is discarded.
	ErrSuperseded = errors.New("search superseded by a newer search")
)

// Condition is the outcome of the most recent lifecycle step.
type Condition string

const (
	ConditionIdle                Condition = "idle"
	ConditionOK                  Condition = "ok"
	ConditionPermissionDenied    Condition = "permission_denied"
	ConditionLocationUnavailable Condition = "location_unavailable"
	ConditionSearchFailed        Condition = "search_failed"
	ConditionChannelFailed       Condition = "channel_failed"
)

type Searcher interface {
	Search(ctx context.Context, q searchapi.Query) ([]developer.Developer, error)
}

// LiveChannel is the realtime subscription owned by the coordinator.
type LiveChannel interface {
	Configure(ctx context.Context, cfg channel.Configuration) error
	Teardown() error
	OnNewDeveloper(h channel.Handler)
	State() channel.State
	Configuration() (channel.Configuration, bool)
}

// History persists completed searches and received developers.
type History interface {
	RecordSearch(q searchapi.Query, results []developer.Developer) error
	RecordLive(d developer.Developer) error
}

type Notifier interface {
	NotifyDeveloper(d developer.Developer)
}

type Deps struct {
	Locator  location.Provider
	Searcher Searcher
	Channel  LiveChannel

	// Optional.
	History     History
	Notifier    Notifier
	Broadcaster events.Broadcaster
	OnUpdate    func()
}

// State is a point-in-time copy of the coordinator state.
type State struct {
	Region       *geo.Region            `json:"region,omitempty"`
	Techs        string                 `json:"techs"`
	Developers   []developer.Developer  `json:"developers"`
	Condition    Condition              `json:"condition"`
	Err          string                 `json:"error,omitempty"`
	ChannelState string                 `json:"channelState"`
	Channel      *channel.Configuration `json:"channel,omitempty"`
	Searching    bool                   `json:"searching"`
}

// Coordinator owns the viewport, the tech filter, the known developers and
// the live channel for one screen.
type Coordinator struct {
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	region     *geo.Region
	techs      string
	developers []developer.Developer
	condition  Condition
	lastErr    error
	issued     uint64 // generation of the latest issued search
	inFlight   int

	configureMu sync.Mutex // serializes channel reconfiguration
}

// New wires the coordinator and registers its single channel handler.
func New(deps Deps, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		deps:      deps,
		logger:    logger,
		condition: ConditionIdle,
	}
	deps.Channel.OnNewDeveloper(c.AddDeveloper)
	return c
}

// Initialize asks for location permission and centers the viewport on the
// current position. A denial is not an error: the coordinator stays without
// a region and searches are refused.
func (c *Coordinator) Initialize(ctx context.Context) (Condition, error) {
	granted, err := c.deps.Locator.RequestPermission(ctx)
	if err != nil {
		err = fmt.Errorf("request permission: %w", err)
		c.setCondition(ConditionLocationUnavailable, err)
		return ConditionLocationUnavailable, err
	}
	if !granted {
		c.logger.Info("radar: location permission denied")
		c.setCondition(ConditionPermissionDenied, nil)
		return ConditionPermissionDenied, nil
	}

	pos, err := c.deps.Locator.CurrentPosition(ctx)
	if err != nil {
		err = fmt.Errorf("current position: %w", err)
		c.setCondition(ConditionLocationUnavailable, err)
		return ConditionLocationUnavailable, err
	}

	region := geo.RegionAround(pos)
	c.mu.Lock()
	c.region = &region
	c.condition = ConditionOK
	c.lastErr = nil
	c.mu.Unlock()
	c.logger.Info("radar: located", "position", pos.String())
	c.changed(events.Event{Type: events.TypeLocated})
	return ConditionOK, nil
}

// OnViewportChanged replaces the stored viewport.
func (c *Coordinator) OnViewportChanged(r geo.Region) {
	c.mu.Lock()
	c.region = &r
	c.mu.Unlock()
	c.changed(events.Event{Type: events.TypeViewportChanged})
}

func (c *Coordinator) SetTechs(techs string) {
	c.mu.Lock()
	c.techs = techs
	c.mu.Unlock()
	c.changed(events.Event{Type: events.TypeFilterChanged})
}

// Search queries the API with the viewport center and tech filter as they
// are when Search is called. On success the known developers are replaced
// and the channel is reconfigured with those same values.
func (c *Coordinator) Search(ctx context.Context) error {
	c.mu.Lock()
	if c.region == nil {
		c.mu.Unlock()
		return ErrNoLocation
	}
	q := searchapi.Query{
		Latitude:  c.region.Latitude,
		Longitude: c.region.Longitude,
		Techs:     c.techs,
	}
	c.issued++
	gen := c.issued
	c.inFlight++
	c.mu.Unlock()
	c.changed(events.Event{Type: events.TypeSearchStarted})

	devs, err := c.deps.Searcher.Search(ctx, q)

	c.mu.Lock()
	c.inFlight--
	if gen != c.issued {
		c.mu.Unlock()
		c.logger.Debug("radar: discarding stale search", "generation", gen)
		c.changed(events.Event{Type: events.TypeSearchDiscarded})
		return ErrSuperseded
	}
	if err != nil {
		err = fmt.Errorf("search: %w", err)
		c.condition = ConditionSearchFailed
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("radar: search failed", "techs", q.Techs, "err", err)
		c.changed(events.Event{Type: events.TypeSearchFailed, Detail: err.Error()})
		return err
	}
	c.developers = append([]developer.Developer{}, devs...)
	c.mu.Unlock()

	c.logger.Info("radar: search completed",
		"latitude", q.Latitude,
		"longitude", q.Longitude,
		"techs", q.Techs,
		"results", len(devs),
	)
	if c.deps.History != nil {
		if err := c.deps.History.RecordSearch(q, devs); err != nil {
			c.logger.Warn("radar: record search", "err", err)
		}
	}
	c.changed(events.Event{Type: events.TypeSearchCompleted, Count: len(devs)})

	return c.reconfigure(ctx, gen, channel.Configuration{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		Techs:     q.Techs,
	})
}

// reconfigure points the channel at cfg unless a newer search has been
// issued meanwhile, in which case that search owns the channel.
func (c *Coordinator) reconfigure(ctx context.Context, gen uint64, cfg channel.Configuration) error {
	c.configureMu.Lock()
	defer c.configureMu.Unlock()

	c.mu.Lock()
	stale := gen != c.issued
	c.mu.Unlock()
	if stale {
		return ErrSuperseded
	}

	if err := c.deps.Channel.Configure(ctx, cfg); err != nil {
		err = fmt.Errorf("configure channel: %w", err)
		c.setCondition(ConditionChannelFailed, err)
		return err
	}
	c.setCondition(ConditionOK, nil)
	return nil
}

// AddDeveloper appends a developer pushed by the live channel. Duplicates
// are kept.
func (c *Coordinator) AddDeveloper(d developer.Developer) {
	c.mu.Lock()
	c.developers = append(c.developers, d)
	c.mu.Unlock()

	c.logger.Info("radar: developer nearby", "id", d.ID, "name", d.DisplayName())
	if c.deps.History != nil {
		if err := c.deps.History.RecordLive(d); err != nil {
			c.logger.Warn("radar: record developer", "err", err)
		}
	}
	if c.deps.Notifier != nil {
		c.deps.Notifier.NotifyDeveloper(d)
	}
	c.changed(events.Event{Type: events.TypeDeveloperAdded, DeveloperID: d.ID, Name: d.DisplayName()})
}

func (c *Coordinator) Developers() []developer.Developer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]developer.Developer{}, c.developers...)
}

func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	s := State{
		Techs:      c.techs,
		Developers: append([]developer.Developer{}, c.developers...),
		Condition:  c.condition,
		Searching:  c.inFlight > 0,
	}
	if c.region != nil {
		r := *c.region
		s.Region = &r
	}
	if c.lastErr != nil {
		s.Err = c.lastErr.Error()
	}
	c.mu.Unlock()

	s.ChannelState = c.deps.Channel.State().String()
	if cfg, ok := c.deps.Channel.Configuration(); ok {
		s.Channel = &cfg
	}
	return s
}

// Close tears down the live channel.
func (c *Coordinator) Close() error {
	return c.deps.Channel.Teardown()
}

func (c *Coordinator) setCondition(cond Condition, err error) {
	c.mu.Lock()
	c.condition = cond
	c.lastErr = err
	c.mu.Unlock()
	c.changed(events.Event{Type: events.TypeCondition, Condition: string(cond)})
}

func (c *Coordinator) changed(e events.Event) {
	if c.deps.Broadcaster != nil {
		c.deps.Broadcaster.Broadcast(e)
	}
	if c.deps.OnUpdate != nil {
		c.deps.OnUpdate()
	}
}
