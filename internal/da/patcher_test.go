package da

import (
	"encoding/binary"
	"testing"

	"github.com/tommynok/penumbra/internal/patch"
)

func encodeMOVW(rd uint8, imm16 uint16) [2]uint16 {
	i := (imm16 >> 11) & 1
	imm4 := (imm16 >> 12) & 0xF
	imm3 := (imm16 >> 8) & 0x7
	imm8 := imm16 & 0xFF
	hw1 := uint16(0xF240) | (i << 10) | imm4
	hw2 := (imm3 << 12) | (uint16(rd) << 8) | imm8
	return [2]uint16{hw1, hw2}
}

func encodeMOVT(rd uint8, imm16 uint16) [2]uint16 {
	i := (imm16 >> 11) & 1
	imm4 := (imm16 >> 12) & 0xF
	imm3 := (imm16 >> 8) & 0x7
	imm8 := imm16 & 0xFF
	hw1 := uint16(0xF2C0) | (i << 10) | imm4
	hw2 := (imm3 << 12) | (uint16(rd) << 8) | imm8
	return [2]uint16{hw1, hw2}
}

func putHalfwords(buf []byte, off int, hw [2]uint16) {
	binary.LittleEndian.PutUint16(buf[off:], hw[0])
	binary.LittleEndian.PutUint16(buf[off+2:], hw[1])
}

// buildDASLAFixture assembles a Thumb-2 DA2 image exercising the
// da-sla-disable step only: a register_all_cmds function (a PUSH
// prologue followed by a movw/movt xref to "CMD:REBOOT"), a second
// movw/movt xref to "CMD:SECURITY-GET-DEV-FW-INFO" immediately followed
// by a placeholder BL, and the "DA.SLA\0ENABLED\0" feature string that
// gates the step.
func buildDASLAFixture(t *testing.T) (code []byte, registerAllCmdsOff, blOff int) {
	t.Helper()

	const prefixLen = 32
	buf := make([]byte, prefixLen)
	binary.LittleEndian.PutUint16(buf[0:], 0xB500) // PUSH {lr}: register_all_cmds prologue
	binary.LittleEndian.PutUint16(buf[2:], 0xBF00)
	binary.LittleEndian.PutUint16(buf[4:], 0xBF00)
	binary.LittleEndian.PutUint16(buf[6:], 0xBF00)
	// [8:16) reboot xref, [16:24) fwinfo xref, [24:28) BL, [28:32) pad — filled below.

	rebootOff := len(buf)
	buf = append(buf, []byte(rebootCmdString)...)
	buf = append(buf, make([]byte, 8)...)

	fwInfoOff := len(buf)
	buf = append(buf, []byte(getDevFwInfoCmdString)...)
	buf = append(buf, make([]byte, 8)...)

	buf = append(buf, []byte(daSlaString)...)
	buf = append(buf, make([]byte, 8)...)

	putHalfwords(buf, 8, encodeMOVW(0, uint16(rebootOff)))
	putHalfwords(buf, 12, encodeMOVT(0, uint16(rebootOff>>16)))
	putHalfwords(buf, 16, encodeMOVW(1, uint16(fwInfoOff)))
	putHalfwords(buf, 20, encodeMOVT(1, uint16(fwInfoOff>>16)))

	placeholderBL := patch.EncodeThumbBL(28, 0x1234)
	putHalfwords(buf, 24, placeholderBL)

	return buf, 0, 24
}

func TestPatchDA2DASLAStep(t *testing.T) {
	code, registerAllCmdsOff, blOff := buildDASLAFixture(t)
	const baseAddr = 0x2000

	report := PatchDA2(code, baseAddr, nil)

	var slaResult *StepResult
	for i := range report.Steps {
		if report.Steps[i].Step == "da-sla-disable" {
			slaResult = &report.Steps[i]
		}
	}
	if slaResult == nil {
		t.Fatal("expected a da-sla-disable step in the report")
	}
	if !slaResult.Applied {
		t.Fatalf("da-sla-disable step did not apply: %s", slaResult.Warning)
	}

	an := patch.NewAnalyzer(code)
	target, ok := an.ResolveBLTarget(blOff, baseAddr)
	if !ok {
		t.Fatal("patched bytes at blOff no longer decode as a BL instruction")
	}
	wantTarget := uint32(baseAddr+registerAllCmdsOff) | 1
	if target != wantTarget {
		t.Fatalf("patched BL targets %#x, want %#x (register_all_cmds)", target, wantTarget)
	}
}

func TestPatchDA2GracefulWhenNothingMatches(t *testing.T) {
	code := make([]byte, 64)
	report := PatchDA2(code, 0, nil)

	if len(report.Steps) != 4 {
		t.Fatalf("expected 4 recorded steps, got %d", len(report.Steps))
	}
	for _, s := range report.Steps {
		if s.Applied {
			t.Fatalf("step %q unexpectedly applied against unrelated code", s.Step)
		}
		if s.Warning == "" {
			t.Fatalf("step %q recorded no warning despite not applying", s.Step)
		}
	}
}

func TestPatchDA2DASLASkippedWithoutFeatureString(t *testing.T) {
	code, _, _ := buildDASLAFixture(t)
	// Blank out the DA.SLA feature string so the step declines to run.
	idx := patch.FindString(code, daSlaString)
	if idx == patch.NotFound {
		t.Fatal("fixture setup: DA.SLA string not found")
	}
	for i := 0; i < len(daSlaString); i++ {
		code[idx+i] = 0x00
	}

	report := PatchDA2(code, 0x2000, nil)
	for _, s := range report.Steps {
		if s.Step == "da-sla-disable" && s.Applied {
			t.Fatal("da-sla-disable should not apply once the feature string is gone")
		}
	}
}
