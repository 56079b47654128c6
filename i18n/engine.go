// Package i18n translates bot replies. Keys are the untranslated text
// itself; the "raw" locale passes them through unchanged.
package i18n

import (
	"fmt"
	"strconv"
	"strings"
)

const RawLocale = "raw"

// MissingRecorder receives keys that had no translation.
type MissingRecorder interface {
	RecordMissing(locale, key string)
}

type Engine struct {
	locale   string
	table    map[string]string
	recorder MissingRecorder
}

// NewEngine builds an engine over table. rec may be nil.
func NewEngine(locale string, table map[string]string, rec MissingRecorder) *Engine {
	if table == nil {
		table = map[string]string{}
	}
	return &Engine{locale: locale, table: table, recorder: rec}
}

// Raw is the passthrough engine.
func Raw(rec MissingRecorder) *Engine {
	return NewEngine(RawLocale, nil, rec)
}

func (e *Engine) Locale() string {
	return e.locale
}

func (e *Engine) IsRaw() bool {
	return e.locale == RawLocale
}

// Lookup returns the translation of key. Empty translations count as missing.
func (e *Engine) Lookup(key string) (string, bool) {
	v, ok := e.table[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Tr translates key. A miss is recorded; raw returns the key itself, other
// locales return a visible placeholder.
func (e *Engine) Tr(key string) string {
	if v, ok := e.Lookup(key); ok {
		return v
	}
	e.RecordMissing(key)
	if e.IsRaw() {
		return key
	}
	return missing(key)
}

// Tmpl translates template and fills its %1..%n placeholders with args.
func (e *Engine) Tmpl(template string, args ...any) string {
	text, ok := e.Lookup(template)
	if !ok {
		e.RecordMissing(template)
		if !e.IsRaw() {
			return missing(template)
		}
		text = template
	}
	return Expand(text, args...)
}

func (e *Engine) RecordMissing(key string) {
	if e.recorder != nil {
		e.recorder.RecordMissing(e.locale, key)
	}
}

func missing(key string) string {
	return "(translation missing: " + key + ")"
}

// Expand replaces %N with the N-th argument (1-based) and %% with %.
// Placeholders without a matching argument are left as they are.
func Expand(text string, args ...any) string {
	if !strings.Contains(text, "%") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '%' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		next := text[i+1]
		if next == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		n, err := strconv.Atoi(text[i+1 : j])
		if err != nil || n < 1 || n > len(args) {
			b.WriteString(text[i:j])
			i = j - 1
			continue
		}
		b.WriteString(formatArg(args[n-1]))
		i = j - 1
	}
	return b.String()
}

func formatArg(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
