package llmclient

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// errStopStream ends readSSE early without reporting an error.
var errStopStream = errors.New("llmclient: stop stream")

// readSSE scans a server-sent-events body and calls fn once per data line
// with the most recent event name.
func readSSE(body io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	event := ""
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if err := fn(event, data); err != nil {
				if errors.Is(err, errStopStream) {
					return nil
				}
				return err
			}
		}
	}
	return sc.Err()
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
