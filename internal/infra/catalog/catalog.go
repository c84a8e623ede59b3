// Package catalog loads content sources and schedules from a YAML file and
// applies them through the admin service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/schedule"
	idb "study_delivery_bot/internal/infra/database"
)

type Item struct {
	Kind  content.Kind `yaml:"kind"`
	Ref   string       `yaml:"ref"`
	Title string       `yaml:"title"`
}

type Source struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Items []Item `yaml:"items"`
}

type Catalog struct {
	Sources   []Source           `yaml:"sources"`
	Schedules []app.ScheduleSpec `yaml:"schedules"`
}

// Admin is the subset of *app.AdminService used to apply a catalog.
type Admin interface {
	CreateSource(ctx context.Context, performingAdminID int64, name, title string) (*content.Source, error)
	AddItem(ctx context.Context, performingAdminID int64, sourceName string, kind content.Kind, ref, title string) (*content.Item, error)
	ListSources(ctx context.Context, performingAdminID int64) ([]*app.SourceOverview, error)
	BuildDefinition(ctx context.Context, spec app.ScheduleSpec) (*schedule.Definition, error)
	CreateSchedule(ctx context.Context, performingAdminID int64, def *schedule.Definition) error
	ListSchedules(ctx context.Context, performingAdminID int64) ([]*schedule.Definition, error)
}

// Result counts what Apply changed.
type Result struct {
	SourcesCreated   int
	ItemsAdded       int
	SchedulesCreated int
	SchedulesSkipped int
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i, s := range c.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
	}
	for i, s := range c.Schedules {
		if s.Name == "" {
			return nil, fmt.Errorf("schedule #%d has no name", i+1)
		}
	}
	return &c, nil
}

// Apply creates missing sources and schedules. Items are append-only: an
// existing source receives only the catalog items past its current length.
// Schedules are matched by name and never updated.
func Apply(ctx context.Context, admin Admin, adminID int64, c *Catalog, logger *logrus.Entry) (*Result, error) {
	res := &Result{}

	existing, err := admin.ListSources(ctx, adminID)
	if err != nil {
		return nil, err
	}
	itemCounts := make(map[string]int, len(existing))
	for _, s := range existing {
		itemCounts[s.Source.Name] = s.Items
	}

	for _, src := range c.Sources {
		name := app.NormalizeSourceName(src.Name)
		log := logger.WithField("source", name)

		have, found := itemCounts[name]
		if !found {
			if _, err := admin.CreateSource(ctx, adminID, name, src.Title); err != nil && !errors.Is(err, idb.ErrDuplicateSourceName) {
				return res, fmt.Errorf("source %q: %w", name, err)
			}
			res.SourcesCreated++
			log.Info("Source created")
		}

		for i := have; i < len(src.Items); i++ {
			it := src.Items[i]
			if _, err := admin.AddItem(ctx, adminID, name, it.Kind, it.Ref, it.Title); err != nil {
				return res, fmt.Errorf("source %q item #%d: %w", name, i+1, err)
			}
			res.ItemsAdded++
		}
	}

	defs, err := admin.ListSchedules(ctx, adminID)
	if err != nil {
		return res, err
	}
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
	}

	for _, spec := range c.Schedules {
		log := logger.WithField("schedule", spec.Name)
		if names[spec.Name] {
			res.SchedulesSkipped++
			log.Debug("Schedule already exists, skipping")
			continue
		}
		def, err := admin.BuildDefinition(ctx, spec)
		if err != nil {
			return res, fmt.Errorf("schedule %q: %w", spec.Name, err)
		}
		if err := admin.CreateSchedule(ctx, adminID, def); err != nil {
			return res, fmt.Errorf("schedule %q: %w", spec.Name, err)
		}
		names[spec.Name] = true
		res.SchedulesCreated++
		log.WithField("schedule_id", def.ID).Info("Schedule created")
	}
	return res, nil
}
