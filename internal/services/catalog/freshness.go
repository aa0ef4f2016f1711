// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/airtimetoday/airtime/internal/models"
)

// Policy selects how "today" is decided.
type Policy string

const (
	// PolicyRolling keeps releases published within the last 24 hours.
	PolicyRolling Policy = "rolling"
	// PolicyCalendar keeps releases published on the current calendar day.
	PolicyCalendar Policy = "calendar"
)

const (
	rollingWindow   = 24 * time.Hour
	DefaultMaxItems = 40
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRolling:
		return PolicyRolling, nil
	case PolicyCalendar:
		return PolicyCalendar, nil
	default:
		return "", fmt.Errorf("unknown freshness policy %q", s)
	}
}

// Window filters and orders releases for display.
type Window struct {
	Policy           Policy
	Location         *time.Location
	IncludeYesterday bool
	// MaxItems caps the list; 0 means uncapped. Today's releases are never cut.
	MaxItems int
}

// DefaultWindow is a rolling 24h window with a yesterday section capped at 40 rows.
func DefaultWindow() Window {
	return Window{
		Policy:           PolicyRolling,
		Location:         time.Local,
		IncludeYesterday: true,
		MaxItems:         DefaultMaxItems,
	}
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// IsToday reports whether published falls in the current window.
func (w Window) IsToday(now, published time.Time) bool {
	if w.Policy == PolicyCalendar {
		return sameDay(now.In(w.location()), published.In(w.location()))
	}

	age := now.Sub(published)
	return age >= 0 && age <= rollingWindow
}

// IsYesterday reports whether published falls in the window right before
// the current one.
func (w Window) IsYesterday(now, published time.Time) bool {
	if w.IsToday(now, published) {
		return false
	}

	if w.Policy == PolicyCalendar {
		loc := w.location()
		return sameDay(now.In(loc).AddDate(0, 0, -1), published.In(loc))
	}

	age := now.Sub(published)
	return age > rollingWindow && age <= 2*rollingWindow
}

// Assemble returns today's releases newest first followed by a header and as
// many of yesterday's releases as fit under MaxItems. The result is never
// empty: a waiting row leads the list when nothing was released today.
func (w Window) Assemble(now time.Time, items []models.ReleaseItem) []models.ReleaseItem {
	var today, yesterday []models.ReleaseItem
	for _, item := range items {
		switch {
		case w.IsToday(now, item.PublishedAt):
			today = append(today, item)
		case w.IncludeYesterday && w.IsYesterday(now, item.PublishedAt):
			yesterday = append(yesterday, item)
		}
	}

	newestFirst(today)
	newestFirst(yesterday)

	out := make([]models.ReleaseItem, 0, len(today)+len(yesterday)+2)
	if len(today) == 0 {
		out = append(out, models.NewWaitingItem(now))
	}
	out = append(out, today...)

	if len(yesterday) == 0 {
		return out
	}

	room := len(yesterday)
	if w.MaxItems > 0 {
		room = min(room, w.MaxItems-len(out)-1)
	}
	if room <= 0 {
		return out
	}

	out = append(out, models.NewSectionHeader(now))
	return append(out, yesterday[:room]...)
}

func newestFirst(items []models.ReleaseItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
