package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseOffset accepts plain seconds ("90") or clock notation ("1:30", "01:01:30").
func parseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time offset")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time offset %q", s)
	}

	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time offset %q", s)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid time offset %q: field out of range", s)
		}
		total = total*60 + n
	}
	return total, nil
}
