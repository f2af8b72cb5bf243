package wikilink

import "bytes"

// Mask returns body with fenced code blocks and inline code spans replaced by
// spaces. Newlines are preserved and the result has the same byte length.
func Mask(body string) string {
	buf := []byte(body)
	maskFences(buf)
	maskCodeSpans(buf)
	return string(buf)
}

// maskFences blanks every line that belongs to a fenced block, delimiters included.
// A fence opens with a run of at least three backticks or tildes indented by at
// most three spaces, and closes on a line whose run of the same character is at
// least as long and followed only by whitespace. Unclosed fences run to the end.
// A backtick opener's info string may not contain a backtick.
func maskFences(buf []byte) {
	var (
		inFence  bool
		fenceCh  byte
		fenceLen int
	)
	for start := 0; start < len(buf); {
		end := start
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		line := buf[start:end]

		if !inFence {
			// A backtick run followed by another backtick on the line is an
			// inline span, not a fence; tilde info strings may hold backticks.
			if ch, n, rest := fenceRun(line); n >= 3 && (ch != '`' || !bytes.Contains(rest, []byte("`"))) {
				inFence, fenceCh, fenceLen = true, ch, n
				blank(line)
			}
		} else {
			ch, n, rest := fenceRun(line)
			blank(line)
			if ch == fenceCh && n >= fenceLen && isBlank(rest) {
				inFence = false
			}
		}
		start = end + 1
	}
}

// fenceRun reports the fence character and run length at the start of line,
// after up to three spaces of indentation, and the bytes following the run.
func fenceRun(line []byte) (byte, int, []byte) {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	if i >= len(line) || (line[i] != '`' && line[i] != '~') {
		return 0, 0, nil
	}
	ch := line[i]
	j := i
	for j < len(line) && line[j] == ch {
		j++
	}
	return ch, j - i, line[j:]
}

// maskCodeSpans blanks inline code: a run of n backticks up to the next run of
// exactly n backticks. A run with no matching closer is left as literal text.
func maskCodeSpans(buf []byte) {
	for i := 0; i < len(buf); {
		if buf[i] != '`' {
			i++
			continue
		}
		open := runLen(buf, i)
		closeAt := -1
		for k := i + open; k < len(buf); {
			if buf[k] != '`' {
				k++
				continue
			}
			n := runLen(buf, k)
			if n == open {
				closeAt = k + n
				break
			}
			k += n
		}
		if closeAt < 0 {
			i += open
			continue
		}
		blank(buf[i:closeAt])
		i = closeAt
	}
}

func runLen(buf []byte, i int) int {
	j := i
	for j < len(buf) && buf[j] == buf[i] {
		j++
	}
	return j - i
}

func blank(b []byte) {
	for i, c := range b {
		if c != '\n' {
			b[i] = ' '
		}
	}
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
