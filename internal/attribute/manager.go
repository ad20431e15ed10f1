// Package attribute resolves event types to categories, sections and
// priorities, and decides which event types a given user has enabled. It is a
// pure function of static configuration plus user state; no I/O happens after
// construction.
package attribute

import (
	"fmt"
	"sort"

	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/model"
)

const (
	// DefaultCategory is assigned to event types whose declared category
	// is missing from the category configuration.
	DefaultCategory = "other"

	// Declared priorities are honored only inside [minPriority, maxPriority];
	// anything else, including an absent declaration, resolves to
	// defaultPriority. Lower number means higher priority.
	minPriority     = 1
	maxPriority     = 10
	defaultPriority = 10
)

// Manager answers category, section, priority and per-user enablement
// questions from the static notification configuration.
type Manager struct {
	notifications map[string]config.EventDefinition
	categories    map[string]config.CategoryDefinition
}

// NewManager creates a Manager from the event-type and category tables.
func NewManager(
	notifications map[string]config.EventDefinition,
	categories map[string]config.CategoryDefinition,
) *Manager {
	return &Manager{
		notifications: notifications,
		categories:    categories,
	}
}

// CategoryEligibility reports whether the user may receive notifications of
// the given category. Categories without a group restriction are open to
// everyone; restricted categories require membership in at least one of the
// listed groups.
func (m *Manager) CategoryEligibility(user model.User, category string) bool {
	def, ok := m.categories[category]
	if !ok || len(def.UserGroups) == 0 {
		return true
	}
	for _, g := range def.UserGroups {
		if user.InGroup(g) {
			return true
		}
	}
	return false
}

// NotificationCategory returns the category of an event type, falling back to
// DefaultCategory when the event type or its declared category is unknown.
func (m *Manager) NotificationCategory(eventType string) string {
	def, ok := m.notifications[eventType]
	if !ok || def.Category == "" {
		return DefaultCategory
	}
	if _, declared := m.categories[def.Category]; !declared {
		return DefaultCategory
	}
	return def.Category
}

// CategoryPriority returns the category's declared priority when it lies in
// the valid range, and defaultPriority otherwise.
func (m *Manager) CategoryPriority(category string) int {
	def, ok := m.categories[category]
	if !ok {
		return defaultPriority
	}
	if def.Priority < minPriority || def.Priority > maxPriority {
		return defaultPriority
	}
	return def.Priority
}

// NotificationPriority returns the priority of the event type's category.
func (m *Manager) NotificationPriority(eventType string) int {
	return m.CategoryPriority(m.NotificationCategory(eventType))
}

// NotificationSection returns the section an event type belongs to,
// defaulting to alert.
func (m *Manager) NotificationSection(eventType string) model.Section {
	if def, ok := m.notifications[eventType]; ok && def.Section != "" {
		return model.Section(def.Section)
	}
	return model.SectionAlert
}

// UserEnabledEvents returns the event types whose category passes eligibility
// for this user and that the user has not disabled for the given delivery
// method. The result is sorted for deterministic queries.
func (m *Manager) UserEnabledEvents(user model.User, method string) []string {
	var events []string
	for eventType := range m.notifications {
		category := m.NotificationCategory(eventType)
		if !m.CategoryEligibility(user, category) {
			continue
		}
		if !user.Option(subscriptionOption(method, category)) {
			continue
		}
		events = append(events, eventType)
	}
	sort.Strings(events)
	return events
}

// UserEnabledEventsBySections filters UserEnabledEvents down to event types
// whose section is one of the requested ones. SectionAll expands to every
// real section.
func (m *Manager) UserEnabledEventsBySections(
	user model.User, method string, sections []model.Section,
) []string {
	wanted := make(map[model.Section]bool, len(sections))
	for _, s := range sections {
		if s == model.SectionAll {
			for _, real := range model.Sections {
				wanted[real] = true
			}
			continue
		}
		wanted[s] = true
	}

	var events []string
	for _, eventType := range m.UserEnabledEvents(user, method) {
		if wanted[m.NotificationSection(eventType)] {
			events = append(events, eventType)
		}
	}
	return events
}

// EventsByCategory builds the inverse index from category to the event types
// resolving to it.
func (m *Manager) EventsByCategory() map[string][]string {
	index := make(map[string][]string)
	for eventType := range m.notifications {
		category := m.NotificationCategory(eventType)
		index[category] = append(index[category], eventType)
	}
	for _, events := range index {
		sort.Strings(events)
	}
	return index
}

// subscriptionOption is the user preference key controlling one category for
// one delivery method.
func subscriptionOption(method, category string) string {
	return fmt.Sprintf("echo-subscriptions-%s-%s", method, category)
}
