package privacy

import "regexp"

// Sensitive-pattern categories, evaluated in this order. Detection is
// best-effort regex matching, not validated parsing: false positives and
// negatives are expected and acceptable. Number-shaped categories run
// before the phone pattern so a card or national-id digit run is not
// partially consumed as a phone number.
const (
	CategoryEmail       = "email"
	CategoryNationalID  = "national_id"
	CategoryPaymentCard = "payment_card"
	CategoryPhone       = "phone"
	CategoryAPIKey      = "api_key"
	CategoryPassword    = "password"
	CategoryIPAddress   = "ip_address"
)

type sensitivePattern struct {
	category string
	re       *regexp.Regexp
}

// The replacement placeholders ([REDACTED:CATEGORY]) are chosen so that no
// pattern below can match inside them, which keeps redaction idempotent.
var sensitivePatterns = []sensitivePattern{
	{CategoryEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{CategoryNationalID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{CategoryPaymentCard, regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)},
	{CategoryPhone, regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?\(?\d{3}\)?[ .\-]\d{3}[ .\-]\d{4}\b`)},
	{CategoryAPIKey, regexp.MustCompile(`\b(?:sk|pk|rk|ghp|gho|xox[bap])[-_][A-Za-z0-9_\-]{16,}\b|\bAKIA[0-9A-Z]{12,}\b|\b(?i:api[_\-]?key|secret|token)["']?\s*[:=]\s*[^\s"']+`)},
	{CategoryPassword, regexp.MustCompile(`(?i)\bpassword\b["']?\s*[:=]\s*[^\s"']+`)},
	{CategoryIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// Forget directives force non-persistence for the current turn regardless
// of any other permission.
var forgetDirectives = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdon'?t\s+remember\s+th(is|at)\b`),
	regexp.MustCompile(`(?i)\bdo\s+not\s+(remember|save|store|keep)\b`),
	regexp.MustCompile(`(?i)\boff\s+the\s+record\b`),
	regexp.MustCompile(`(?i)\bprivate\s+mode\b`),
	regexp.MustCompile(`(?i)\bforget\s+(this|that|it)\b`),
	regexp.MustCompile(`(?i)\bbetween\s+us\b`),
}
