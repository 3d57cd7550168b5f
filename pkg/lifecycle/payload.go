package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// payloadText re-serializes a raw JSON object in its original key order with
// ", " and ": " separators and non-ASCII escaped, leaving out the top-level
// key drop.
func payloadText(raw []byte, drop string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	enc := &payloadEncoder{dec: dec, drop: drop}
	if err := enc.value(0); err != nil {
		return "", fmt.Errorf("render event payload: %w", err)
	}

	return enc.buf.String(), nil
}

type payloadEncoder struct {
	dec  *json.Decoder
	buf  strings.Builder
	drop string
}

func (e *payloadEncoder) value(depth int) error {
	tok, err := e.dec.Token()
	if err != nil {
		return err
	}

	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			return e.object(depth)
		}

		return e.array(depth)
	case string:
		e.writeString(t)
	case json.Number:
		e.buf.WriteString(t.String())
	case bool:
		e.buf.WriteString(strconv.FormatBool(t))
	case nil:
		e.buf.WriteString("null")
	}

	return nil
}

func (e *payloadEncoder) object(depth int) error {
	e.buf.WriteByte('{')

	first := true
	for e.dec.More() {
		tok, err := e.dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		if depth == 0 && key == e.drop {
			var skipped json.RawMessage
			if err := e.dec.Decode(&skipped); err != nil {
				return err
			}

			continue
		}

		if !first {
			e.buf.WriteString(", ")
		}
		first = false

		e.writeString(key)
		e.buf.WriteString(": ")
		if err := e.value(depth + 1); err != nil {
			return err
		}
	}

	if _, err := e.dec.Token(); err != nil {
		return err
	}
	e.buf.WriteByte('}')

	return nil
}

func (e *payloadEncoder) array(depth int) error {
	e.buf.WriteByte('[')

	first := true
	for e.dec.More() {
		if !first {
			e.buf.WriteString(", ")
		}
		first = false

		if err := e.value(depth + 1); err != nil {
			return err
		}
	}

	if _, err := e.dec.Token(); err != nil {
		return err
	}
	e.buf.WriteByte(']')

	return nil
}

func (e *payloadEncoder) writeString(s string) {
	e.buf.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7f:
				e.buf.WriteRune(r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&e.buf, `\u%04x\u%04x`, r1, r2)
			default:
				fmt.Fprintf(&e.buf, `\u%04x`, r)
			}
		}
	}

	e.buf.WriteByte('"')
}
