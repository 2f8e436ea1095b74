package http

import (
	"time"

	"TradePulse/pkg/util"
)

// Query-parameter parsing helpers, re-exported so handlers only need
// this package.

func ParseIntDefault(s string, def int) int { return util.ParseIntDefault(s, def) }

func ParseTimeDefault(s string, def time.Time) time.Time { return util.ParseTimeDefault(s, def) }
