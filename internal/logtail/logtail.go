package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Read returns at most maxLines from the end of the file at path. A maxLines
// of zero or less returns every line.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Attr is one key=value pair of a record, in line order.
type Attr struct {
	Key   string
	Value string
}

// Record is a parsed slog text handler line.
type Record struct {
	Time    time.Time
	Level   string
	Message string
	Attrs   []Attr
	Raw     string
}

// Attr returns the value for key.
func (r Record) Attr(key string) (string, bool) {
	for _, a := range r.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Parse splits a key=value line. Lines that are not in that format come back
// with only Raw and Message set.
func Parse(line string) Record {
	rec := Record{Raw: line}
	pairs, ok := splitPairs(line)
	if !ok {
		rec.Message = strings.TrimSpace(line)
		return rec
	}
	for _, p := range pairs {
		switch p.Key {
		case "time":
			if ts, err := time.Parse(time.RFC3339Nano, p.Value); err == nil {
				rec.Time = ts
				continue
			}
			rec.Attrs = append(rec.Attrs, p)
		case "level":
			rec.Level = strings.ToUpper(p.Value)
		case "msg":
			rec.Message = p.Value
		default:
			rec.Attrs = append(rec.Attrs, p)
		}
	}
	return rec
}

// ParseAll parses every line.
func ParseAll(lines []string) []Record {
	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, Parse(line))
	}
	return out
}

func splitPairs(line string) ([]Attr, bool) {
	var pairs []Attr
	rest := strings.TrimSpace(line)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 || strings.ContainsAny(rest[:eq], " \t\"") {
			return nil, false
		}
		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, false
			}
			value, err = strconv.Unquote(quoted)
			if err != nil {
				return nil, false
			}
			rest = rest[len(quoted):]
		} else if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
			value, rest = rest[:sp], rest[sp:]
		} else {
			value, rest = rest, ""
		}
		pairs = append(pairs, Attr{Key: key, Value: value})
		rest = strings.TrimLeft(rest, " \t")
	}
	return pairs, len(pairs) > 0
}
