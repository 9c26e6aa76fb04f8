// Package schedule provides schedules for recurring deferred calls.
//
// This package includes:
//   - Schedule interface for computing the next run time
//   - Every() for fixed-interval schedules
//   - Daily() and DailyIn() for daily schedules at a specific time
//   - Weekly() and WeeklyIn() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//
// Most users should import the root package github.com/jdziat/simple-delay
// which re-exports these functions.
package schedule
