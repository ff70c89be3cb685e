package da

import "github.com/tommynok/penumbra/internal/patch"

// symbolAnchor grounds one DA-internal symbol lookup in either a literal
// byte-pattern anchor (the XFlash path, spec.md §4.5's
// "38B505460C20"-style anchors) or a string cross-reference walk (the XML
// path). Both are tried; the first that resolves wins, so a single table
// serves both protocol engines without duplicating the symbol list.
type symbolAnchor struct {
	pattern string // hex pattern with XX wildcards, or "" if not applicable
	str     string // string literal to xref, or "" if not applicable
}

// knownSymbols maps DA symbol names to the anchors spec.md §4.4/§4.5
// describe. Patterns are representative anchors for the instruction
// sequence immediately preceding or inside the named routine; exact
// vendor DA builds vary; these are the pack's closest grounding (the
// patterns spec.md §4.5 gives verbatim) and are tried before falling back
// to a string xref.
var knownSymbols = map[string]symbolAnchor{
	"register_devctrl":  {str: "CMD:DEVICE-CTRL"},
	"mmc_get_card":      {pattern: "38B505460C20"},
	"register_all_cmds": {str: "CMD:REBOOT"},
	"mmc_set_part_config": {pattern: "4B4FF43C72"},
	"download_file":     {pattern: "4B4FF43C72", str: "download_file"},
	"mmc_rpmb_send_command": {str: "RPMB"},
	"upload_file":       {str: "upload_file"},
	"ufshcd_queuecommand": {str: "ufshcd"},
	"malloc":            {str: "malloc"},
	"ufshcd_get_free_tag": {str: "ufshcd_get_free_tag"},
	"free":              {str: "free"},
	"g_ufs_hba":         {str: "g_ufs_hba"},
	"gettext":           {str: "gettext"},
	"mxml_load_string":  {str: "mxml_load_string"},
}

// ResolveSymbol finds the file offset of name within code using an.
// Pattern anchors are tried first (cheap, exact); a string-xref walk is
// the fallback spec.md §4.5 describes for the XML path. It returns
// patch.NotFound if neither succeeds or name is unknown.
func ResolveSymbol(an patch.Analyzer, code []byte, name string) int {
	anchor, ok := knownSymbols[name]
	if !ok {
		return patch.NotFound
	}
	if anchor.pattern != "" {
		if off, err := patch.FindPattern(code, anchor.pattern, 0); err == nil && off != patch.NotFound {
			return off
		}
	}
	if anchor.str != "" {
		strOff := an.StringRef(anchor.str)
		if strOff == patch.NotFound {
			return patch.NotFound
		}
		xrefOff := an.Xref(strOff)
		if xrefOff == patch.NotFound {
			return patch.NotFound
		}
		return an.FunctionStart(xrefOff)
	}
	return patch.NotFound
}
