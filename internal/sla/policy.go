package sla

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// Targets are the response and resolution windows measured from ticket creation.
type Targets struct {
	Response   time.Duration
	Resolution time.Duration
}

// Policy maps priority, and optionally category plus priority, to targets.
// Category entries take precedence over the priority defaults.
type Policy struct {
	Priorities map[domain.TicketPriority]Targets
	Categories map[string]map[domain.TicketPriority]Targets
}

// DefaultPolicy returns the built-in priority table.
func DefaultPolicy() Policy {
	return Policy{
		Priorities: map[domain.TicketPriority]Targets{
			domain.TicketPriorityUrgent: {Response: time.Hour, Resolution: 4 * time.Hour},
			domain.TicketPriorityHigh:   {Response: 4 * time.Hour, Resolution: 24 * time.Hour},
			domain.TicketPriorityMedium: {Response: 8 * time.Hour, Resolution: 48 * time.Hour},
			domain.TicketPriorityLow:    {Response: 24 * time.Hour, Resolution: 72 * time.Hour},
		},
		Categories: map[string]map[domain.TicketPriority]Targets{},
	}
}

// TargetsFor resolves the targets for a priority within a category.
func (p Policy) TargetsFor(priority domain.TicketPriority, category string) Targets {
	if byPriority, ok := p.Categories[normalizeCategory(category)]; ok {
		if targets, ok := byPriority[priority]; ok {
			return targets
		}
	}
	if targets, ok := p.Priorities[priority]; ok {
		return targets
	}
	return p.Priorities[domain.TicketPriorityMedium]
}

// Validate ensures every entry is positive and response never exceeds resolution.
func (p Policy) Validate() error {
	var errs []error
	for _, priority := range []domain.TicketPriority{
		domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent,
	} {
		targets, ok := p.Priorities[priority]
		if !ok {
			errs = append(errs, fmt.Errorf("priority %s has no targets", priority))
			continue
		}
		if err := targets.validate(string(priority)); err != nil {
			errs = append(errs, err)
		}
	}
	for category, byPriority := range p.Categories {
		for priority, targets := range byPriority {
			if err := targets.validate(category + "/" + string(priority)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t Targets) validate(label string) error {
	if t.Response <= 0 || t.Resolution <= 0 {
		return fmt.Errorf("%s: hours must be positive", label)
	}
	if t.Response > t.Resolution {
		return fmt.Errorf("%s: response window exceeds resolution window", label)
	}
	return nil
}

type policyFile struct {
	Priorities map[string]targetsFile            `yaml:"priorities"`
	Categories map[string]map[string]targetsFile `yaml:"categories"`
}

type targetsFile struct {
	ResponseHours   float64 `yaml:"response_hours"`
	ResolutionHours float64 `yaml:"resolution_hours"`
}

func (f targetsFile) targets() Targets {
	return Targets{Response: hours(f.ResponseHours), Resolution: hours(f.ResolutionHours)}
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read sla policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy merges a YAML document over the default priority table.
func ParsePolicy(data []byte) (Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse sla policy: %w", err)
	}
	policy := DefaultPolicy()
	for name, entry := range file.Priorities {
		priority, err := parsePriority(name)
		if err != nil {
			return Policy{}, err
		}
		policy.Priorities[priority] = entry.targets()
	}
	for category, entries := range file.Categories {
		key := normalizeCategory(category)
		byPriority := make(map[domain.TicketPriority]Targets, len(entries))
		for name, entry := range entries {
			priority, err := parsePriority(name)
			if err != nil {
				return Policy{}, err
			}
			byPriority[priority] = entry.targets()
		}
		policy.Categories[key] = byPriority
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid sla policy: %w", err)
	}
	return policy, nil
}

func parsePriority(name string) (domain.TicketPriority, error) {
	priority := domain.TicketPriority(strings.ToLower(strings.TrimSpace(name)))
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
		return priority, nil
	}
	return "", fmt.Errorf("unknown priority %q in sla policy", name)
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func hours(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}
