package perr

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeEncodeXFlashCodeRoundTrip(t *testing.T) {
	code := EncodeXFlashCode(SeverityError, DomainDa, 0x0002)
	sev, dom, cs := DecodeXFlashCode(code)
	if sev != SeverityError || dom != DomainDa || cs != 0x0002 {
		t.Fatalf("decode(%#x) = (%s, %s, %#x), want (Error, Da, 0x0002)", code, sev, dom, cs)
	}
}

func TestXFlashCodeNameKnown(t *testing.T) {
	code := EncodeXFlashCode(SeverityError, DomainDa, 0x0002)
	name, ok := XFlashCodeName(code)
	if !ok || name != "STATUS_DA_SLA_FAIL" {
		t.Fatalf("XFlashCodeName(%#x) = (%q, %v), want (STATUS_DA_SLA_FAIL, true)", code, name, ok)
	}
}

func TestXFlashCodeNameUnknownStillDecodes(t *testing.T) {
	code := EncodeXFlashCode(SeverityWarning, XFlashDomain(200), 0xBEEF)
	if _, ok := XFlashCodeName(code); ok {
		t.Fatalf("expected no curated name for a made-up code")
	}
	sev, dom, cs := DecodeXFlashCode(code)
	if sev != SeverityWarning || dom != XFlashDomain(200) || cs != 0xBEEF {
		t.Fatalf("decode of unknown code lost information: (%s, %s, %#x)", sev, dom, cs)
	}
}

func TestXFlashErrorMessageIncludesDecodedFields(t *testing.T) {
	err := NewXFlash(EncodeXFlashCode(SeverityError, DomainSecurity, 0x0002))
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error message")
	}
	if !strings.Contains(msg, "sev=Error dom=Security case=0x0002") {
		t.Fatalf("message %q does not include the decoded fields", msg)
	}
	var xe *XFlashError
	if !errors.As(err, &xe) {
		t.Fatal("NewXFlash should return an *XFlashError")
	}
	if xe.Code != EncodeXFlashCode(SeverityError, DomainSecurity, 0x0002) {
		t.Fatalf("unexpected code on XFlashError: %#x", xe.Code)
	}
}

func TestIoErrorUnwrap(t *testing.T) {
	inner := errors.New("deadline exceeded")
	err := NewIo("read_exact", inner)
	if !errors.Is(err, inner) {
		t.Fatal("IoError should unwrap to its wrapped error")
	}
}

func TestXmlErrorKindString(t *testing.T) {
	err := NewXml("CMD:FORMAT not recognised", XmlUnsupportedCmd)
	var xe *XmlError
	if !errors.As(err, &xe) {
		t.Fatal("NewXml should return an *XmlError")
	}
	if xe.Kind.String() != "UnsupportedCmd" {
		t.Fatalf("Kind.String() = %q, want UnsupportedCmd", xe.Kind.String())
	}
}

func TestPenumbraErrorConstructors(t *testing.T) {
	if err := Penumbra("no signer for %s", "modulus-x"); err.Error() != "no signer for modulus-x" {
		t.Fatalf("Penumbra formatting failed: %v", err)
	}
	if err := NewConnection("BROM handshake failed"); err.Error() != "connection: BROM handshake failed" {
		t.Fatalf("NewConnection formatting failed: %v", err)
	}
	if err := NewProtocol("truncated frame"); err.Error() != "protocol: truncated frame" {
		t.Fatalf("NewProtocol formatting failed: %v", err)
	}
	if err := NewStatus("erase", 0x1); !errors.As(err, new(*StatusError)) {
		t.Fatal("NewStatus should return a *StatusError")
	}
}
