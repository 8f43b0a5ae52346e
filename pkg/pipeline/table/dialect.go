package table

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedInput is returned when the table text cannot be parsed.
var ErrMalformedInput = errors.New("malformed input")

// ParseError describes the line that could not be parsed.
type ParseError struct {
	// Line is 1-based and counts every physical line, including dropped blank ones.
	Line int
	Text string
}

func (e *ParseError) Error() string {
	if e == nil {
		return ErrMalformedInput.Error()
	}
	text := e.Text
	if len(text) > 80 {
		text = text[:80] + "..."
	}
	return fmt.Sprintf("malformed input: unclosed quote on line %d: %q", e.Line, text)
}

func (e *ParseError) Unwrap() error { return ErrMalformedInput }

// Dialect is the field delimiter and quote character used for both parse and serialize.
type Dialect struct {
	Comma rune
	Quote rune
}

// DefaultDialect is the semicolon-delimited style wine catalog exports use.
var DefaultDialect = Dialect{Comma: ';', Quote: '"'}

func (d Dialect) withDefaults() Dialect {
	if d.Comma == 0 {
		d.Comma = DefaultDialect.Comma
	}
	if d.Quote == 0 {
		d.Quote = DefaultDialect.Quote
	}
	return d
}

// Parse parses text with DefaultDialect.
func Parse(text string) (Table, error) {
	return DefaultDialect.Parse(text)
}

// ParseReader reads r fully and parses it with DefaultDialect.
func ParseReader(r io.Reader) (Table, error) {
	return DefaultDialect.ParseReader(r)
}

// Serialize renders t with DefaultDialect.
func Serialize(t Table) string {
	return DefaultDialect.Serialize(t)
}

// Write renders t with DefaultDialect into w.
func Write(w io.Writer, t Table) error {
	return DefaultDialect.Write(w, t)
}

// ParseReader reads r fully and parses it.
func (d Dialect) ParseReader(r io.Reader) (Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read table: %w", err)
	}
	return d.Parse(string(b))
}

// Parse splits text into lines, drops blank lines, and reads the first remaining line as
// the header. Rows shorter than the header get "" for the missing trailing fields; extra
// fields are ignored. A quote left open at the end of a line fails the whole parse.
func (d Dialect) Parse(text string) (Table, error) {
	d = d.withDefaults()
	text = strings.TrimPrefix(text, "\ufeff")

	var (
		headers []string
		rows    []Row
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, ok := d.splitLine(line)
		if !ok {
			return Table{}, &ParseError{Line: i + 1, Text: line}
		}
		if headers == nil {
			headers = fields
			continue
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			if _, dup := row[h]; dup {
				continue
			}
			if j < len(fields) {
				row[h] = fields[j]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if headers == nil {
		return Table{Headers: []string{}, Rows: []Row{}}, nil
	}
	if rows == nil {
		rows = []Row{}
	}
	return Table{Headers: headers, Rows: rows}, nil
}

func (d Dialect) splitLine(line string) ([]string, bool) {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == d.Quote:
			if inQuotes && i+1 < len(runes) && runes[i+1] == d.Quote {
				cur.WriteRune(d.Quote)
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == d.Comma && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if inQuotes {
		return nil, false
	}
	return append(fields, cur.String()), true
}

// Serialize renders the header line followed by one line per row, in header order.
// Lines are joined with "\n" and there is no trailing newline.
func (d Dialect) Serialize(t Table) string {
	d = d.withDefaults()
	var b strings.Builder
	d.writeLine(&b, t.Headers)
	fields := make([]string, len(t.Headers))
	for _, r := range t.Rows {
		for i, h := range t.Headers {
			fields[i] = r.Get(h)
		}
		b.WriteByte('\n')
		d.writeLine(&b, fields)
	}
	return b.String()
}

// Write renders t into w.
func (d Dialect) Write(w io.Writer, t Table) error {
	_, err := io.WriteString(w, d.Serialize(t))
	return err
}

func (d Dialect) writeLine(b *strings.Builder, fields []string) {
	var line strings.Builder
	for i, f := range fields {
		if i > 0 {
			line.WriteRune(d.Comma)
		}
		line.WriteString(d.quote(f))
	}
	// A blank line would be dropped on parse; quote the first field to keep the row.
	if len(fields) > 0 && strings.TrimSpace(line.String()) == "" {
		q := string(d.Quote)
		b.WriteString(q + fields[0] + q)
		b.WriteString(line.String()[len(fields[0]):])
		return
	}
	b.WriteString(line.String())
}

func (d Dialect) quote(v string) string {
	if !strings.ContainsRune(v, d.Comma) && !strings.ContainsRune(v, d.Quote) && !strings.ContainsAny(v, "\r\n") {
		return v
	}
	q := string(d.Quote)
	return q + strings.ReplaceAll(v, q, q+q) + q
}
