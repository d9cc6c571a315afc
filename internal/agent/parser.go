package agent

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"agenthud.router/internal/core/domain"
)

// Update is a change the wrapped process asked to report.
type Update struct {
	Status   domain.AgentStatus
	Summary  string
	Detail   string
	Progress int // percent, -1 when absent
}

var (
	statusRe   = regexp.MustCompile(`^@status\s+([A-Z_]+)(?:\s+(.*))?$`)
	detailRe   = regexp.MustCompile(`^@detail\s+(.*)$`)
	progressRe = regexp.MustCompile(`progress=(\d{1,3})%?`)
)

// parseLine extracts a directive from one line of the wrapped process's
// output:
//
//	@status WAITING_APPROVAL Deploy to prod?
//	@detail 3 files changed
//	... progress=42 ...
//
// Any other line is ignored.
func parseLine(line string) (Update, bool) {
	line = strings.TrimSpace(line)

	if m := statusRe.FindStringSubmatch(line); m != nil {
		status := domain.AgentStatus(m[1])
		if !status.Valid() {
			return Update{}, false
		}
		return Update{Status: status, Summary: strings.TrimSpace(m[2]), Progress: -1}, true
	}

	if m := detailRe.FindStringSubmatch(line); m != nil {
		return Update{Detail: strings.TrimSpace(m[1]), Progress: -1}, true
	}

	if m := progressRe.FindStringSubmatch(line); m != nil {
		pct, err := strconv.Atoi(m[1])
		if err != nil || pct > 100 {
			return Update{}, false
		}
		return Update{Progress: pct}, true
	}

	return Update{}, false
}

// ScanUpdates parses r line by line and sends every directive to out.
// It returns when r is exhausted or ctx is cancelled.
func ScanUpdates(ctx context.Context, r io.Reader, out chan<- Update) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		u, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
