package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"liquidator/internal/domain/notification"
	"liquidator/pkg/errors"
	"liquidator/pkg/templates"
)

const (
	templatePrefix   = "telegram/"
	fallbackTemplate = templatePrefix + "event"
)

var severityEmoji = map[notification.Severity]string{
	notification.SeverityInfo:     "✅",
	notification.SeverityWarning:  "⚠️",
	notification.SeverityCritical: "🚨",
}

// Renderer turns events into Telegram Markdown using the telegram/<kind>
// template, falling back to a generic field listing
type Renderer struct {
	registry *templates.Registry
}

// NewRenderer renders with the embedded templates
func NewRenderer() (*Renderer, error) {
	return NewRendererFromRegistry(templates.Get())
}

func NewRendererFromRegistry(registry *templates.Registry) (*Renderer, error) {
	if !registry.Has(fallbackTemplate) {
		return nil, errors.Wrapf(errors.ErrNotFound, "missing %s template", fallbackTemplate)
	}
	return &Renderer{registry: registry}, nil
}

// Render formats an event for chat delivery
func (r *Renderer) Render(event notification.Event) (string, error) {
	id := templatePrefix + string(event.Kind)
	if !r.registry.Has(id) {
		id = fallbackTemplate
	}

	text, err := r.registry.Render(id, newMessageData(event))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

type messageField struct {
	Label string
	Value string
}

type messageData struct {
	Emoji  string
	Title  string
	Time   string
	Fields []messageField
	raw    map[string]interface{}
}

func newMessageData(event notification.Event) messageData {
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]messageField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, messageField{Label: label(k), Value: formatField(k, event.Fields[k])})
	}

	emoji, ok := severityEmoji[event.Severity]
	if !ok {
		emoji = "ℹ️"
	}

	return messageData{
		Emoji:  emoji,
		Title:  event.Title,
		Time:   event.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"),
		Fields: fields,
		raw:    event.Fields,
	}
}

// Has reports whether the event carries key
func (d messageData) Has(key string) bool {
	_, ok := d.raw[key]
	return ok
}

// Field returns the formatted value of key, or "n/a"
func (d messageData) Field(key string) string {
	v, ok := d.raw[key]
	if !ok {
		return "n/a"
	}
	return formatField(key, v)
}

// Int returns key as an int, 0 when absent or not integral
func (d messageData) Int(key string) int {
	switch v := d.raw[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint8:
		return int(v)
	default:
		return 0
	}
}

func label(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Identifiers are printed without digit grouping
func formatField(key string, v interface{}) string {
	if key == "id" || strings.HasSuffix(key, "_id") {
		return templates.CodeSpan(fmt.Sprintf("%v", v))
	}
	return formatValue(v)
}

func formatValue(v interface{}) string {
	var s string
	switch x := v.(type) {
	case float64:
		s = humanize.CommafWithDigits(x, 4)
	case int:
		s = humanize.Comma(int64(x))
	case int64:
		s = humanize.Comma(x)
	case time.Duration:
		s = x.Round(time.Millisecond).String()
	case time.Time:
		s = x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		s = x.String()
	case error:
		s = x.Error()
	case nil:
		s = "n/a"
	default:
		s = fmt.Sprintf("%v", x)
	}
	// Values sit inside code spans
	return templates.CodeSpan(s)
}
