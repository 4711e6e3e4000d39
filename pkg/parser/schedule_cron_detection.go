package parser

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var scheduleCronLog = logger.New("parser:schedule_cron_detection")

// This file validates POSIX cron expressions used by schedule triggers. The
// runner accepts five fields and the month/day-of-week name aliases; the
// seconds field and the "@daily" style macros are not supported.

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// IsCronExpression checks if the input looks like a valid cron expression.
func IsCronExpression(input string) bool {
	return ValidateCronExpression(input) == nil
}

// ValidateCronExpression checks that input has five fields and that every
// value, range and step lies within the field's bounds.
func ValidateCronExpression(input string) error {
	fields := strings.Fields(input)
	if len(fields) != 5 {
		scheduleCronLog.Printf("Invalid cron %q: %d fields", input, len(fields))
		return fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	fields[4] = normalizeSunday(fields[4])

	if _, err := cronParser.Parse(strings.Join(fields, " ")); err != nil {
		scheduleCronLog.Printf("Invalid cron %q: %v", input, err)
		return fmt.Errorf("invalid cron expression %q: %w", input, err)
	}
	return nil
}

// normalizeSunday rewrites the day-of-week alias 7 to 0.
func normalizeSunday(field string) string {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		if part == "7" {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ",")
}
