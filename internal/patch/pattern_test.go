package patch

import "testing"

func TestFindPatternWildcard(t *testing.T) {
	data := []byte{0x00, 0x38, 0xB5, 0x46, 0x0C, 0x20, 0xFF}
	idx, err := FindPattern(data, "38B5XX20", 0)
	if err != nil {
		t.Fatalf("FindPattern: %v", err)
	}
	if idx != NotFound {
		t.Fatalf("expected NotFound for a pattern that does not occur, got %d", idx)
	}

	idx, err = FindPattern(data, "38B5XX0C", 0)
	if err != nil {
		t.Fatalf("FindPattern: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected match at offset 1, got %d", idx)
	}
}

func TestFindPatternOffset(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	idx, err := FindPattern(data, "AA", 2)
	if err != nil {
		t.Fatalf("FindPattern: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected first match at-or-after offset 2 to be 2, got %d", idx)
	}
}

func TestFindPatternInvalidHex(t *testing.T) {
	if _, err := FindPattern([]byte{0x00}, "ZZ", 0); err == nil {
		t.Fatal("expected error for non-hex, non-wildcard pattern byte")
	}
	if _, err := FindPattern([]byte{0x00}, "A", 0); err == nil {
		t.Fatal("expected error for odd-length pattern")
	}
}

func TestPatchLeavesWildcardsUntouched(t *testing.T) {
	buf := []byte{0x00, 0x11, 0x22, 0x33}
	if err := Patch(buf, 1, "XXFF"); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	want := []byte{0x00, 0x11, 0xFF, 0x33}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("Patch result = % X, want % X", buf, want)
		}
	}
}

func TestPatchOutOfRange(t *testing.T) {
	buf := make([]byte, 2)
	if err := Patch(buf, 1, "0011"); err == nil {
		t.Fatal("expected error when pattern runs past buffer end")
	}
}

func TestPatchBytes(t *testing.T) {
	buf := []byte{0, 0, 0, 0}
	if err := PatchBytes(buf, 1, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("PatchBytes: %v", err)
	}
	want := []byte{0, 0xDE, 0xAD, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("PatchBytes result = % X, want % X", buf, want)
		}
	}
}

func TestFindBytesAndFindString(t *testing.T) {
	data := append([]byte("prefix-"), []byte("RSC_FAIL\x00")...)
	idx := FindBytes(data, []byte("RSC_FAIL"), 0)
	if idx != len("prefix-") {
		t.Fatalf("FindBytes = %d, want %d", idx, len("prefix-"))
	}
	if FindString(data, "RSC_FAIL") != idx {
		t.Fatalf("FindString disagreed with FindBytes")
	}
	if FindString(data, "NOPE") != NotFound {
		t.Fatal("expected NotFound for absent string")
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0xde, 0xad, 0xbe, 0xef}); got != "DEADBEEF" {
		t.Fatalf("BytesToHex = %q, want DEADBEEF", got)
	}
}
