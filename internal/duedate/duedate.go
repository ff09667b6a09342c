// Package duedate holds the pure due-date arithmetic for recurring payments.
// It has no dependencies on the database or HTTP layers so every rule can be
// tested as a plain function.
//
// Two computations exist side by side and must never be merged:
//
//   - ReceivingDate is the creation-time computation: the agreed date plus the
//     payment delay. Its result is persisted on the payment row and is the
//     sole source of truth for "due today".
//   - DueDate re-derives a due date from the day-of-month anchor each month.
//     It is diagnostic only: after month-length rollovers it may disagree with
//     the stored receiving date, and that divergence is itself a signal worth
//     counting. It never decides who gets emailed.
package duedate

import "time"

// ISODate is the wire and comparison format for calendar dates.
const ISODate = "2006-01-02"

// DueDate derives the due date for a given month from the day-of-month anchor
// and the delay in days.
//
// The candidate date is built as (year, month, agreementDay) in loc. When
// agreementDay exceeds the length of the month, time.Date normalizes forward
// into the following month (Feb 31 → Mar 3, or Mar 2 in leap years) — that
// rollover is the defined behavior here, not an accident of the library.
// delayDays calendar days are then added, which may cross month and year
// boundaries.
func DueDate(agreementDay, delayDays, year int, month time.Month, loc *time.Location) time.Time {
	anchor := time.Date(year, month, agreementDay, 0, 0, 0, 0, loc)
	return anchor.AddDate(0, 0, delayDays)
}

// ReceivingDate is the creation-time computation: the full agreement date plus
// delayDays calendar days. This is what gets stored on the payment row.
func ReceivingDate(agreementDate time.Time, delayDays int) time.Time {
	return agreementDate.AddDate(0, 0, delayDays)
}

// SameDay reports whether a and b fall on the same calendar date. Both are
// compared by their own wall-clock date — callers are responsible for having
// evaluated them in a consistent zone.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Today truncates now to its calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Ordinal returns the English ordinal suffix for a day of month: 1 → "st",
// 2 → "nd", 11–13 → "th".
func Ordinal(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
