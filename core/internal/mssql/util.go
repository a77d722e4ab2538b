package mssql

import (
	"bytes"
	"strconv"
	"strings"
)

func quoted(w *bytes.Buffer, identifier string) {
	w.WriteString(`[`)
	w.WriteString(strings.ReplaceAll(identifier, `]`, `]]`))
	w.WriteString(`]`)
}

func colWithTable(w *bytes.Buffer, table, col string) {
	quoted(w, table)
	w.WriteString(`.`)
	quoted(w, col)
}

func alias(w *bytes.Buffer, alias string) {
	w.WriteString(` AS `)
	quoted(w, alias)
}

// squoted writes a unicode string literal. The control characters used
// as placeholders in statement text are written with NCHAR.
func squoted(w *bytes.Buffer, val string) {
	if !strings.ContainsAny(val, "\x00\x01") {
		w.WriteString(`N'`)
		w.WriteString(strings.ReplaceAll(val, `'`, `''`))
		w.WriteString(`'`)
		return
	}

	w.WriteString(`(`)
	for i, part := range splitControl(val) {
		if i != 0 {
			w.WriteString(` + `)
		}
		if len(part) == 1 && (part[0] == 0 || part[0] == 1) {
			w.WriteString(`NCHAR(`)
			w.WriteString(strconv.Itoa(int(part[0])))
			w.WriteString(`)`)
			continue
		}
		w.WriteString(`N'`)
		w.WriteString(strings.ReplaceAll(part, `'`, `''`))
		w.WriteString(`'`)
	}
	w.WriteString(`)`)
}

// splitControl splits s into runs of text and single \x00 or \x01 bytes.
func splitControl(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] == 1 {
			if i > start {
				parts = append(parts, s[start:i])
			}
			parts = append(parts, s[i:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func int64String(w *bytes.Buffer, val int64) {
	w.WriteString(strconv.FormatInt(val, 10))
}

// indent prefixes every line of s with four spaces.
func indent(s string) string {
	if s == "" {
		return s
	}
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
