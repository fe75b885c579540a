package extract

import (
	"regexp"
	"sort"
	"strings"
)

// The three reference-code patterns that recur in memo text:
//   - contiguous digit runs of length >= 4 (check and authorization numbers)
//   - #-prefixed short alphanumeric hash codes
//   - explicit "auth"/"ref" markers followed by a code
var (
	digitRunRe = regexp.MustCompile(`\d{4,}`)
	hashCodeRe = regexp.MustCompile(`#([A-Za-z0-9]{3,12})`)
	markerRe   = regexp.MustCompile(`(?i)\b(?:auth|authorization|ref|reference)\b[:#\s]*([A-Za-z0-9]{3,20})`)
)

// ExtractReferenceCodes pulls the reference codes out of freeform memo or
// description text. Codes are returned de-duplicated and sorted so the
// extraction is stable across runs.
func ExtractReferenceCodes(rawText string) []string {
	if rawText == "" {
		return nil
	}

	seen := make(map[string]struct{})

	for _, m := range digitRunRe.FindAllString(rawText, -1) {
		seen[m] = struct{}{}
	}
	for _, m := range hashCodeRe.FindAllStringSubmatch(rawText, -1) {
		seen[strings.ToUpper(m[1])] = struct{}{}
	}
	for _, m := range markerRe.FindAllStringSubmatch(rawText, -1) {
		seen[strings.ToUpper(m[1])] = struct{}{}
	}

	if len(seen) == 0 {
		return nil
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
