package logging

import "regexp"

const mask = "***"

// Longer key names first so "signature" is not matched as "sign".
// Covers key=value query/form pairs and "key":"value" JSON pairs.
var secretPattern = regexp.MustCompile(
	`(?i)("?)(api[_-]?secret|api[_-]?key|passphrase|signature|secret|memo|sign)("\s*:\s*"|\s*=\s*)("?)([^&\s",}]*)`)

// Redact masks secret-like key/value pairs in free text before it is
// logged or rendered. The value is replaced, the key and shape are kept
// so diagnostics stay readable.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, `${1}${2}${3}${4}`+mask)
}
