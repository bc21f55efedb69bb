// Package parser decodes YAML import batches into domain records.
//
// A batch looks like:
//
//	user: alice
//	categories:
//	  - name: Fitness
//	    color: "#22c55e"
//	goals:
//	  - category: Fitness
//	    metric: minutes
//	    target: "30"
//	    period: daily
//	entries:
//	  - category: Fitness
//	    metric: minutes
//	    value: "25"
//	    date: 2026-10-17
//
// Goals and entries may reference a category by id or by the name of a
// category declared in the same batch.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/starford/vigor/internal/models"
)

// Batch is a decoded import file.
type Batch struct {
	UserID     string
	Categories []models.Category
	Goals      []models.Goal
	Entries    []models.Entry
}

// Empty reports whether the batch carries no records.
func (b *Batch) Empty() bool {
	return len(b.Categories) == 0 && len(b.Goals) == 0 && len(b.Entries) == 0
}

// Error locates a decoding failure inside a batch.
type Error struct {
	Section string // categories, goals or entries
	Index   int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%d]: %v", e.Section, e.Index, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEmpty is returned for a file without a YAML document.
var ErrEmpty = errors.New("parser: empty batch")

type rawBatch struct {
	User       string        `yaml:"user"`
	Categories []rawCategory `yaml:"categories"`
	Goals      []rawGoal     `yaml:"goals"`
	Entries    []rawEntry    `yaml:"entries"`
}

type rawCategory struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Color    string `yaml:"color"`
	Enabled  *bool  `yaml:"enabled"`
	Position int    `yaml:"position"`
}

type rawGoal struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Metric   string `yaml:"metric"`
	Target   string `yaml:"target"`
	Period   string `yaml:"period"`
}

type rawEntry struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Metric   string `yaml:"metric"`
	Value    string `yaml:"value"`
	Date     string `yaml:"date"`
	Note     string `yaml:"note"`
}

// Parse decodes a batch. Unknown keys are rejected. Category ids are assigned
// here when missing so that name references can be resolved.
func Parse(data []byte) (*Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw rawBatch
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("parser: decode: %w", err)
	}

	b := &Batch{UserID: strings.TrimSpace(raw.User)}
	byName := make(map[string]string, len(raw.Categories))

	for i, rc := range raw.Categories {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return nil, &Error{Section: "categories", Index: i, Err: errors.New("name is required")}
		}
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			id = models.NewID()
		}
		enabled := true
		if rc.Enabled != nil {
			enabled = *rc.Enabled
		}
		byName[name] = id
		b.Categories = append(b.Categories, models.Category{
			ID:       id,
			Name:     name,
			Color:    rc.Color,
			Enabled:  enabled,
			Position: rc.Position,
		})
	}

	resolve := func(ref string) string {
		ref = strings.TrimSpace(ref)
		if id, ok := byName[ref]; ok {
			return id
		}
		return ref
	}

	for i, rg := range raw.Goals {
		target, err := decimal.NewFromString(strings.TrimSpace(rg.Target))
		if err != nil {
			return nil, &Error{Section: "goals", Index: i, Err: fmt.Errorf("target %q: not a number", rg.Target)}
		}
		period := strings.TrimSpace(rg.Period)
		if period == "" {
			period = models.PeriodDaily
		}
		b.Goals = append(b.Goals, models.Goal{
			ID:         strings.TrimSpace(rg.ID),
			CategoryID: resolve(rg.Category),
			MetricID:   strings.TrimSpace(rg.Metric),
			Target:     target,
			Period:     period,
		})
	}

	for i, re := range raw.Entries {
		value, err := decimal.NewFromString(strings.TrimSpace(re.Value))
		if err != nil {
			return nil, &Error{Section: "entries", Index: i, Err: fmt.Errorf("value %q: not a number", re.Value)}
		}
		date, err := models.ParseDate(re.Date)
		if err != nil {
			return nil, &Error{Section: "entries", Index: i, Err: err}
		}
		b.Entries = append(b.Entries, models.Entry{
			ID:         strings.TrimSpace(re.ID),
			CategoryID: resolve(re.Category),
			MetricID:   strings.TrimSpace(re.Metric),
			Value:      value,
			Date:       date,
			Note:       re.Note,
		})
	}

	return b, nil
}
