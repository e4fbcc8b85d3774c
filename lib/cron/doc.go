// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and computes the next
// occurrence after a given time. Agents use it to drive cron-style
// recurring timers on the wall clock.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12 or jan-dec)
//	│ │ │ │ ┌───────────── day of week (0-7 or sun-sat, 0 and 7 are Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Each field accepts single values, ranges (1-5), lists (1,3,5), steps
// (*/15, 1-30/5, 10/5) and the wildcard. The descriptors @yearly,
// @annually, @monthly, @weekly, @daily, @midnight and @hourly stand in
// for a whole expression.
//
// When both day-of-month and day-of-week are restricted a day matches
// if either field matches, as in Vixie cron. Schedules are evaluated in
// the location passed to ParseIn (UTC for Parse). There is no seconds
// field.
package cron
