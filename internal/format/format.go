// Package format renders dates, numbers, currencies and durations
// according to a language record. The language itself is resolved per
// request: an explicit choice in the transaction context wins,
// otherwise the Accept-Language header is matched against the
// translatable languages.
package format

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/ormscope/ormscope/internal/orm"
)

// DefaultLanguage is used when neither the transaction context nor the
// Accept-Language header picks one.
const DefaultLanguage = "en"

// LanguageSource supplies the language records negotiation works from.
// models.LangModel implements it.
type LanguageSource interface {
	Translatable(ctx context.Context, tx *orm.Tx) ([]*orm.Record, error)
	ByCode(ctx context.Context, tx *orm.Tx, code string) (*orm.Record, error)
}

// Formatter resolves languages through the language model. Formatting
// itself is stateless; the package-level functions take the language
// record directly.
type Formatter struct {
	langs LanguageSource
}

func New(langs LanguageSource) *Formatter {
	return &Formatter{langs: langs}
}

// Language picks the language code for a request. The transaction
// context entry "language" takes precedence; otherwise the header is
// matched against the translatable languages, falling back to
// DefaultLanguage when nothing matches.
func (f *Formatter) Language(ctx context.Context, tx *orm.Tx, acceptLanguage string) (string, error) {
	if code, ok := tx.Value("language").(string); ok && code != "" {
		return code, nil
	}

	langs, err := f.langs.Translatable(ctx, tx)
	if err != nil {
		return "", err
	}
	if acceptLanguage == "" || len(langs) == 0 {
		return DefaultLanguage, nil
	}

	codes := make([]string, 0, len(langs))
	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		code := lang.String("code")
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		codes = append(codes, code)
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return DefaultLanguage, nil
	}

	desired, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(desired) == 0 {
		return DefaultLanguage, nil
	}

	matcher := language.NewMatcher(tags)
	_, idx, conf := matcher.Match(desired...)
	if conf == language.No {
		return DefaultLanguage, nil
	}

	return codes[idx], nil
}

// Lang loads the language record for a code.
func (f *Formatter) Lang(ctx context.Context, tx *orm.Tx, code string) (*orm.Record, error) {
	return f.langs.ByCode(ctx, tx, code)
}

// FuncMap exposes the formatting helpers to templates, bound to one
// language record.
func (f *Formatter) FuncMap(lang *orm.Record) template.FuncMap {
	return template.FuncMap{
		"dateformat": func(t time.Time) string {
			return FormatDate(t, lang)
		},
		"numberformat": func(v decimal.Decimal, digits int) string {
			return FormatNumber(v, lang, digits)
		},
		"currencyformat": func(v decimal.Decimal, symbol string, digits int) string {
			return FormatCurrency(v, lang, symbol, digits)
		},
		"timedeltaformat": func(d time.Duration) string {
			return FormatTimeDelta(d)
		},
	}
}

// FormatDate renders t using the language's date_format pattern.
func FormatDate(t time.Time, lang *orm.Record) string {
	pattern := lang.String("date_format")
	if pattern == "" {
		pattern = "%m/%d/%Y"
	}

	return formatPattern(t, pattern)
}

// FormatNumber renders value with the language's decimal point,
// thousands separator and digit grouping. A non-negative digits pins
// the number of decimal places; digits below zero keeps the value's
// own scale.
func FormatNumber(value decimal.Decimal, lang *orm.Record, digits int) string {
	neg := value.IsNegative()
	abs := value.Abs()

	var raw string
	if digits >= 0 {
		raw = abs.StringFixed(int32(digits))
	} else {
		raw = abs.String()
	}

	intPart, fracPart, hasFrac := strings.Cut(raw, ".")
	intPart = groupDigits(intPart, groupingSizes(lang), lang.String("thousands_sep"))

	point := lang.String("decimal_point")
	if point == "" {
		point = "."
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(intPart)
	if hasFrac {
		b.WriteString(point)
		b.WriteString(fracPart)
	}

	return b.String()
}

// FormatCurrency renders value as a currency amount: the symbol
// precedes the grouped number, the sign precedes the symbol.
func FormatCurrency(value decimal.Decimal, lang *orm.Record, symbol string, digits int) string {
	number := FormatNumber(value.Abs(), lang, digits)
	if value.IsNegative() {
		return "-" + symbol + number
	}

	return symbol + number
}

// FormatTimeDelta renders a duration as days plus a clock component,
// "3d 04:05:06" or "04:05:06" when under a day.
func FormatTimeDelta(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute) / time.Second

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	fmt.Fprintf(&b, "%02d:%02d:%02d", hours, minutes, seconds)

	return b.String()
}

// groupingSizes parses the language's grouping column, a JSON list of
// group sizes applied right to left where a zero repeats the previous
// size.
func groupingSizes(lang *orm.Record) []int {
	raw := lang.String("grouping")
	if raw == "" {
		return nil
	}

	var sizes []int
	if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
		return nil
	}

	return sizes
}

func groupDigits(digits string, sizes []int, sep string) string {
	if sep == "" || len(sizes) == 0 || sizes[0] <= 0 {
		return digits
	}

	next := sizeSequence(sizes)
	var parts []string
	rest := digits
	for {
		size := next()
		if size <= 0 || len(rest) <= size {
			break
		}
		parts = append(parts, rest[len(rest)-size:])
		rest = rest[:len(rest)-size]
	}
	parts = append(parts, rest)
	slices.Reverse(parts)

	return strings.Join(parts, sep)
}

// sizeSequence walks the grouping spec: each call yields the next
// group size, a zero entry repeats the previous size indefinitely, and
// an exhausted spec stops grouping.
func sizeSequence(sizes []int) func() int {
	i := 0
	last := 0
	return func() int {
		if i >= len(sizes) {
			return 0
		}
		if sizes[i] == 0 {
			return last
		}
		last = sizes[i]
		i++
		return last
	}
}

// formatPattern renders t according to a strftime style pattern. Only
// the directives the language table actually uses are implemented;
// unknown directives pass through literally.
func formatPattern(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			b.WriteByte(pattern[i])
			continue
		}
		i++
		if i >= len(pattern) {
			b.WriteByte('%')
			break
		}

		switch pattern[i] {
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case 'B':
			b.WriteString(t.Month().String())
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'A':
			b.WriteString(t.Weekday().String())
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'j':
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}

	return b.String()
}
