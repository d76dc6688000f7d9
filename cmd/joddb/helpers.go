package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// humanizeLabel turns a snake_case status or stage into display form, for
// example "pending_qa" becomes "Pending QA".
func humanizeLabel(value string) string {
	if value == "" {
		return "-"
	}
	label := titleCaser.String(strings.ReplaceAll(value, "_", " "))
	return strings.ReplaceAll(label, "Qa", "QA")
}

func formatSeconds(seconds *int64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds) * time.Second).String()
}

func formatPercent(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *value)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
