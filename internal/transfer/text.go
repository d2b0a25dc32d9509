package transfer

import (
	"bufio"
	"bytes"
	"strings"
)

// ParseText yields one unit per non-blank line. Lines starting with '#' are
// comments. Every unit is tagged ImportedTag.
func ParseText(data []byte) []Unit {
	var out []Unit
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Unit{Text: line, Tags: []string{ImportedTag}})
	}
	return out
}
