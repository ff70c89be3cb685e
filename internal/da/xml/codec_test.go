package xml

import (
	"strings"
	"testing"
)

func TestUpperKebabConversion(t *testing.T) {
	cases := map[string]string{
		"SetRscCommand": "SET-RSC-COMMAND",
		"BootTo":        "BOOT-TO",
		"Status":        "STATUS",
	}
	for in, want := range cases {
		if got := upperKebab(in); got != want {
			t.Errorf("upperKebab(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFieldTagForms(t *testing.T) {
	if d := parseFieldTag("Anything", "-"); !d.skip {
		t.Fatal(`tag "-" should produce a skip descriptor`)
	}

	d := parseFieldTag("BootMode", "")
	if d.tag != "BOOT-MODE" || d.section != "" {
		t.Fatalf("empty tag descriptor = %+v, want tag=BOOT-MODE section=\"\"", d)
	}

	d = parseFieldTag("Ignored", "arg")
	if d.tag != "arg" || d.section != "" {
		t.Fatalf("simple tag descriptor = %+v, want tag=arg", d)
	}

	d = parseFieldTag("Ignored", "section/tag")
	if d.tag != "tag" || d.section != "section" {
		t.Fatalf("sectioned tag descriptor = %+v, want tag=tag section=section", d)
	}

	d = parseFieldTag("Ignored", "count,fmt=%04d")
	if d.tag != "count" || d.format != "%04d" {
		t.Fatalf("formatted tag descriptor = %+v, want tag=count fmt=%%04d", d)
	}

	d = parseFieldTag("Ignored", "detail/count,fmt=%04d")
	if d.tag != "count" || d.section != "detail" || d.format != "%04d" {
		t.Fatalf("sectioned+formatted tag descriptor = %+v, want tag=count section=detail fmt=%%04d", d)
	}
}

type setRscCommand struct {
	Version string `penumbra:"-"`
	Arg     string `penumbra:"arg"`
	Index   int    `penumbra:"index,fmt=%04d"`
	Nested  string `penumbra:"detail/note"`
}

func TestRenderCommandAndGetTagRoundTrip(t *testing.T) {
	cmd := &setRscCommand{Arg: "partition_table", Index: 3, Nested: "relocated"}
	doc, err := RenderCommand(cmd)
	if err != nil {
		t.Fatalf("RenderCommand: %v", err)
	}
	if !strings.Contains(doc, "<SET-RSC-COMMAND>") {
		t.Fatalf("expected command tag SET-RSC-COMMAND in %q", doc)
	}

	if v, ok := GetTag(doc, "command/SET-RSC-COMMAND/arg"); !ok || v != "partition_table" {
		t.Fatalf("GetTag(arg) = (%q, %v), want (partition_table, true)", v, ok)
	}
	if v, ok := GetTag(doc, "command/SET-RSC-COMMAND/index"); !ok || v != "0003" {
		t.Fatalf("GetTag(index) = (%q, %v), want (0003, true)", v, ok)
	}
	if v, ok := GetTag(doc, "command/SET-RSC-COMMAND/detail/note"); !ok || v != "relocated" {
		t.Fatalf("GetTag(detail/note) = (%q, %v), want (relocated, true)", v, ok)
	}
}

func TestRenderCommandRejectsNonStruct(t *testing.T) {
	if _, err := RenderCommand("not a struct"); err == nil {
		t.Fatal("expected an error when RenderCommand is given a non-struct value")
	}
}

func TestRenderCommandEscapesXML(t *testing.T) {
	type doc struct {
		Note string `penumbra:"note"`
	}
	out, err := RenderCommand(&doc{Note: `a<b>&"c"`})
	if err != nil {
		t.Fatalf("RenderCommand: %v", err)
	}
	if strings.Contains(out, "<b>") || !strings.Contains(out, "&lt;b&gt;") {
		t.Fatalf("expected escaped special characters in %q", out)
	}
}

func TestGetTagMissingSegment(t *testing.T) {
	doc := "<command><version>1.0</version><STATUS></STATUS></command>"
	if _, ok := GetTag(doc, "command/STATUS/missing"); ok {
		t.Fatal("GetTag should report false for a segment that does not exist")
	}
}
