package da

import (
	"fmt"
	"log"

	"github.com/tommynok/penumbra/internal/patch"
)

// Lock-state / immediate-return stub bytes, verbatim from spec.md §4.4
// step 1. The trailing 8 bytes of each are reused in step 2 as a
// callee-body "return 0" stub, since that is exactly what they encode
// once the leading pointer-store instruction is dropped.
var (
	lockStateStubAArch64 = mustHex("1F0000B9000080D2C0035FD6")
	lockStateStubARM     = mustHex("0020A0E30400 80E80000A0E31EFF2FE1")

	returnZeroStubAArch64 = lockStateStubAArch64[4:]
	returnZeroStubARM     = lockStateStubARM[8:]
)

func mustHex(s string) []byte {
	s = removeSpaces(s)
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		for _, c := range s[i*2 : i*2+2] {
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= byte(c - '0')
			case c >= 'A' && c <= 'F':
				b |= byte(c-'A') + 10
			case c >= 'a' && c <= 'f':
				b |= byte(c-'a') + 10
			}
		}
		out[i] = b
	}
	return out
}

func removeSpaces(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// StepResult records one patch step's outcome for the caller's log/UI.
type StepResult struct {
	Step    string
	Applied bool
	Warning string
}

// PatchReport is the outcome of PatchDA2: every step is attempted and
// recorded independently (spec.md §4.4: "a single failed step must not
// abort the others").
type PatchReport struct {
	Steps []StepResult
}

func (r *PatchReport) record(step string, applied bool, warnFmt string, args ...any) {
	res := StepResult{Step: step, Applied: applied}
	if warnFmt != "" {
		res.Warning = fmt.Sprintf(warnFmt, args...)
		log.Printf("[da-patch] %s: %s", step, res.Warning)
	} else {
		log.Printf("[da-patch] %s: applied", step)
	}
	r.Steps = append(r.Steps, res)
}

// PatchDA2 mutates the DA2 bytes in code in place, applying all four steps
// of spec.md §4.4 in order. It returns a report of what succeeded; the
// patched bytes are the caller's own code slice.
// extLoaderPayload is the caller-supplied extloader_v6.bin contents
// (spec.md §1: payload blobs are provided by the external collaborator,
// not embedded by this module); baseAddr is the DA's load address.
func PatchDA2(code []byte, baseAddr uint32, extLoaderPayload []byte) *PatchReport {
	report := &PatchReport{}
	an := patch.NewAnalyzer(code)
	aarch64 := patch.DetectArch(code)

	patchLockState(code, an, aarch64, report)
	patchSecurityPolicy(code, an, report)
	patchDASLA(code, an, baseAddr, report)
	patchExtLoader(code, an, baseAddr, aarch64, extLoaderPayload, report)

	return report
}

const lockStateString = "[%s] sec_get_seccfg"

func patchLockState(code []byte, an patch.Analyzer, aarch64 bool, report *PatchReport) {
	const step = "lock-state"
	strOff := an.StringRef(lockStateString)
	if strOff == patch.NotFound {
		report.record(step, false, "string %q not found", lockStateString)
		return
	}
	xrefOff := an.Xref(strOff)
	if xrefOff == patch.NotFound {
		report.record(step, false, "no xref to %q", lockStateString)
		return
	}
	fnOff := an.FunctionStart(xrefOff)
	if fnOff == patch.NotFound {
		report.record(step, false, "could not find enclosing function start")
		return
	}
	stub := lockStateStubARM
	if aarch64 {
		stub = lockStateStubAArch64
	}
	if err := patch.PatchBytes(code, fnOff, stub); err != nil {
		report.record(step, false, "%v", err)
		return
	}
	report.record(step, true, "")
}

const securityPolicyString = "==========security policy=========="

func patchSecurityPolicy(code []byte, an patch.Analyzer, report *PatchReport) {
	const step = "security-policy"
	strOff := an.StringRef(securityPolicyString)
	if strOff == patch.NotFound {
		report.record(step, false, "string %q not found", securityPolicyString)
		return
	}
	xrefOff := an.Xref(strOff)
	if xrefOff == patch.NotFound {
		report.record(step, false, "no xref to %q", securityPolicyString)
		return
	}
	fnOff := an.FunctionStart(xrefOff)
	if fnOff == patch.NotFound {
		report.record(step, false, "could not find enclosing function start")
		return
	}

	var calls []int
	cursor := fnOff
	for len(calls) < 4 {
		blOff := an.NextBL(cursor)
		if blOff == patch.NotFound {
			break
		}
		calls = append(calls, blOff)
		cursor = blOff + an.InstrSize()
	}
	if len(calls) < 4 {
		report.record(step, false, "found only %d of 4 expected BL calls", len(calls))
		return
	}

	aarch64 := patch.DetectArch(code)
	retStub := returnZeroStubARM
	if aarch64 {
		retStub = returnZeroStubAArch64
	}

	patched := 0
	for _, callIdx := range calls[1:4] { // calls 2,3,4 (0-indexed 1..3)
		target, ok := an.ResolveBLTarget(callIdx, 0)
		if !ok {
			continue
		}
		if !aarch64 {
			target &^= 1 // strip Thumb interworking bit
		}
		targetOff := int(target)
		if err := patch.PatchBytes(code, targetOff, retStub); err == nil {
			patched++
		}
	}
	if patched < 3 {
		report.record(step, patched > 0, "patched %d/3 downstream calls", patched)
		return
	}
	report.record(step, true, "")
}

const (
	daSlaString           = "DA.SLA\x00ENABLED\x00"
	rebootCmdString       = "CMD:REBOOT"
	getDevFwInfoCmdString = "CMD:SECURITY-GET-DEV-FW-INFO"
)

func patchDASLA(code []byte, an patch.Analyzer, baseAddr uint32, report *PatchReport) {
	const step = "da-sla-disable"
	if patch.FindString(code, daSlaString) == patch.NotFound {
		report.record(step, false, "DA.SLA feature string absent; nothing to disable")
		return
	}

	rebootStrOff := an.StringRef(rebootCmdString)
	if rebootStrOff == patch.NotFound {
		report.record(step, false, "string %q not found", rebootCmdString)
		return
	}
	rebootXref := an.Xref(rebootStrOff)
	if rebootXref == patch.NotFound {
		report.record(step, false, "no xref to %q", rebootCmdString)
		return
	}
	registerAllCmdsOff := an.FunctionStart(rebootXref)
	if registerAllCmdsOff == patch.NotFound {
		report.record(step, false, "could not find register_all_cmds")
		return
	}

	fwInfoStrOff := an.StringRef(getDevFwInfoCmdString)
	if fwInfoStrOff == patch.NotFound {
		report.record(step, false, "string %q not found", getDevFwInfoCmdString)
		return
	}
	fwInfoXref := an.Xref(fwInfoStrOff)
	if fwInfoXref == patch.NotFound {
		report.record(step, false, "no xref to %q", getDevFwInfoCmdString)
		return
	}
	blOff := an.NextBL(fwInfoXref)
	if blOff == patch.NotFound {
		report.record(step, false, "no BL following xref")
		return
	}

	targetAddr := baseAddr + uint32(registerAllCmdsOff)
	if patch.DetectArch(code) {
		word := patch.EncodeBL(baseAddr+uint32(blOff), targetAddr)
		if err := writeU32(code, blOff, word); err != nil {
			report.record(step, false, "%v", err)
			return
		}
	} else {
		pc := baseAddr + uint32(blOff) + 4
		hw := patch.EncodeThumbBL(pc, targetAddr|1)
		if err := writeU16(code, blOff, hw[0]); err != nil {
			report.record(step, false, "%v", err)
			return
		}
		if err := writeU16(code, blOff+2, hw[1]); err != nil {
			report.record(step, false, "%v", err)
			return
		}
	}
	report.record(step, true, "")
}

const (
	bootToCmdString = "CMD:BOOT-TO"
	setRscCmdString = "CMD:SET-RSC"
)

func patchExtLoader(code []byte, an patch.Analyzer, baseAddr uint32, aarch64 bool, payload []byte, report *PatchReport) {
	const step = "ext-loader-injection"
	if patch.FindString(code, bootToCmdString) != patch.NotFound {
		report.record(step, false, "CMD:BOOT-TO already present; DA does not need the stub")
		return
	}
	if len(payload) == 0 {
		report.record(step, false, "no extloader_v6.bin payload supplied")
		return
	}

	v6, err := ParseV6Payload(payload)
	if err != nil {
		report.record(step, false, "%v", err)
		return
	}
	stub := v6.Slice(aarch64)

	downloadFileOff := ResolveSymbol(an, code, "download_file")
	if downloadFileOff == patch.NotFound {
		report.record(step, false, "could not resolve download_file")
		return
	}
	RelocateSentinel(stub, SentinelRegisterDevctrl, baseAddr+uint32(downloadFileOff))

	rscStrOff := an.StringRef(setRscCmdString)
	if rscStrOff == patch.NotFound {
		report.record(step, false, "string %q not found", setRscCmdString)
		return
	}
	rscXref := an.Xref(rscStrOff)
	if rscXref == patch.NotFound {
		report.record(step, false, "no xref to %q", setRscCmdString)
		return
	}
	handlerOff := an.FunctionStart(rscXref)
	if handlerOff == patch.NotFound {
		report.record(step, false, "could not find CMD:SET-RSC handler")
		return
	}

	if err := patch.PatchBytes(code, handlerOff, stub); err != nil {
		report.record(step, false, "%v", err)
		return
	}
	if err := patch.PatchBytes(code, rscStrOff, []byte(bootToCmdString)); err != nil {
		report.record(step, false, "renamed handler but failed to rename command string: %v", err)
		return
	}
	report.record(step, true, "")
}

func writeU32(buf []byte, off int, v uint32) error {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return patch.PatchBytes(buf, off, b)
}

func writeU16(buf []byte, off int, v uint16) error {
	b := []byte{byte(v), byte(v >> 8)}
	return patch.PatchBytes(buf, off, b)
}
