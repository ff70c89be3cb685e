// Package xml implements the XML DA protocol engine: UTF-8 command/arg
// documents framed by the XFlash 12-byte header, with a minimal
// tag-path reader instead of encoding/xml's tree model (spec.md §4.3,
// §6).
package xml

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// fieldDescriptor is the decoded form of a `penumbra:"..."` struct tag
// (spec.md §4.3: "Fields carry one of {skip, simple(tag),
// formatted(tag, fmt)} descriptors, derived from declarative
// attributes").
type fieldDescriptor struct {
	skip    bool
	section string
	tag     string
	format  string // printf-style, empty for simple(tag)
}

// parseFieldTag decodes a struct field's `penumbra` tag. Supported forms:
//
//	`penumbra:"-"`                      skip
//	`penumbra:"tag"`                    simple(tag)
//	`penumbra:"section/tag"`            simple(tag) under section
//	`penumbra:"tag,fmt=%04d"`           formatted(tag, fmt)
//	`penumbra:"section/tag,fmt=%04d"`   formatted(tag, fmt) under section
func parseFieldTag(fieldName, tag string) fieldDescriptor {
	if tag == "-" {
		return fieldDescriptor{skip: true}
	}
	if tag == "" {
		return fieldDescriptor{tag: upperKebab(fieldName)}
	}

	format := ""
	rest := tag
	if parts := strings.SplitN(tag, ",", 2); len(parts) == 2 {
		rest = parts[0]
		if strings.HasPrefix(parts[1], "fmt=") {
			format = strings.TrimPrefix(parts[1], "fmt=")
		}
	}

	section := ""
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		section = rest[:idx]
		rest = rest[idx+1:]
	}
	return fieldDescriptor{section: section, tag: rest, format: format}
}

// upperKebab converts an UpperCamelCase Go identifier to
// UPPER-KEBAB-CASE, spec.md §4.3's default tag naming convention.
func upperKebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(rune(s[i-1]))
			nextLower := i+1 < len(s) && unicode.IsLower(rune(s[i+1]))
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// CommandVersion is the protocol version stamped on every rendered
// command. A struct field named Version does not override it: unless it
// is tagged `penumbra:"-"` (skipped), it renders as an ordinary child
// element.
const CommandVersion = "1.0"

// RenderCommand builds the `<command>...</command>` XML document for cmd,
// a pointer to a struct whose UpperCamelCase name becomes the
// UPPER-KEBAB-CASE command tag (spec.md §4.3).
func RenderCommand(cmd any) (string, error) {
	v := reflect.ValueOf(cmd)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("xml: RenderCommand requires a struct, got %s", v.Kind())
	}
	t := v.Type()
	name := upperKebab(t.Name())

	var b strings.Builder
	fmt.Fprintf(&b, "<command><version>%s</version><%s>", CommandVersion, name)

	sections := map[string]*strings.Builder{}
	var sectionOrder []string
	top := &strings.Builder{}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		desc := parseFieldTag(f.Name, f.Tag.Get("penumbra"))
		if desc.skip {
			continue
		}
		value := renderFieldValue(v.Field(i), desc)
		tagXML := fmt.Sprintf("<%s>%s</%s>", desc.tag, escapeXML(value), desc.tag)

		if desc.section == "" {
			top.WriteString(tagXML)
			continue
		}
		sb, ok := sections[desc.section]
		if !ok {
			sb = &strings.Builder{}
			sections[desc.section] = sb
			sectionOrder = append(sectionOrder, desc.section)
		}
		sb.WriteString(tagXML)
	}

	b.WriteString(top.String())
	for _, sec := range sectionOrder {
		fmt.Fprintf(&b, "<%s>%s</%s>", sec, sections[sec].String(), sec)
	}
	fmt.Fprintf(&b, "</%s></command>", name)
	return b.String(), nil
}

func renderFieldValue(fv reflect.Value, desc fieldDescriptor) string {
	if desc.format != "" {
		return fmt.Sprintf(desc.format, fv.Interface())
	}
	return fmt.Sprintf("%v", fv.Interface())
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

// GetTag navigates doc with a "a/b/c" path over <a><b><c>…</c></b></a>
// and returns the text content of the innermost tag, spec.md §6's
// minimal XML reader. It returns ("", false) if any segment is missing.
func GetTag(doc, path string) (string, bool) {
	segments := strings.Split(path, "/")
	remaining := doc
	for _, seg := range segments {
		open := "<" + seg + ">"
		closeTag := "</" + seg + ">"
		start := strings.Index(remaining, open)
		if start == -1 {
			return "", false
		}
		start += len(open)
		end := strings.Index(remaining[start:], closeTag)
		if end == -1 {
			return "", false
		}
		remaining = remaining[start : start+end]
	}
	return remaining, true
}
