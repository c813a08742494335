package utils

import (
	"fmt"
	"strings"
)

type hms struct {
	h, m, s, ms int64
}

func split(ms int64) hms {
	ret := hms{h: ms / 3_600_000}
	ms -= ret.h * 3_600_000
	ret.m = ms / 60_000
	ms -= ret.m * 60_000
	ret.s = ms / 1000
	ret.ms = ms - ret.s*1000
	return ret
}

// FormatMs renders a duration like "1m 2s 3ms". Leading zero units are
// omitted, zero is rendered as "0ms".
func FormatMs(ms int64) string {
	if ms < 0 {
		return "-" + FormatMs(-ms)
	}
	v := split(ms)
	parts := []struct {
		val  int64
		unit string
	}{{v.h, "h"}, {v.m, "m"}, {v.s, "s"}, {v.ms, "ms"}}
	var b strings.Builder
	started := false
	for _, p := range parts {
		if p.val > 0 || started {
			fmt.Fprintf(&b, "%d%s ", p.val, p.unit)
			started = true
		}
	}
	if !started {
		return "0ms"
	}
	return strings.TrimSuffix(b.String(), " ")
}

// FormatMsShort renders a duration like "0h1m2.3s" with every unit present.
func FormatMsShort(ms int64) string {
	if ms < 0 {
		return "-" + FormatMsShort(-ms)
	}
	v := split(ms)
	return fmt.Sprintf("%dh%dm%d.%ds", v.h, v.m, v.s, v.ms)
}
