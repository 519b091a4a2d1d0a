package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultRenames fixes headers the spreadsheet template gets wrong before
// normalisation.
var DefaultRenames = map[string]string{
	"Tipe Bangunan\n(isi dengan angka 1 - 3)": "tipe_bangunan",
}

// HeaderRule rewrites one column header.
type HeaderRule interface {
	Apply(header string) string
	Name() string
}

// QualityIssue describes something the cleaner changed or skipped.
type QualityIssue struct {
	Type    string `json:"type"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// HeaderCleaner applies its rules in order to every header.
type HeaderCleaner struct {
	rules []HeaderRule
}

// NewHeaderCleaner renames with DefaultRenames plus extra, then normalises.
func NewHeaderCleaner(extra map[string]string) *HeaderCleaner {
	renames := make(map[string]string, len(DefaultRenames)+len(extra))
	for from, to := range DefaultRenames {
		renames[from] = to
	}
	for from, to := range extra {
		renames[from] = to
	}
	cleaner := &HeaderCleaner{}
	cleaner.AddRule(NewRenameRule(renames))
	cleaner.AddRule(NewNormalizeRule())
	return cleaner
}

func (c *HeaderCleaner) AddRule(rule HeaderRule) {
	c.rules = append(c.rules, rule)
}

// Clean returns the rewritten headers and one issue per header that changed
// or came out empty.
func (c *HeaderCleaner) Clean(headers []string) ([]string, []QualityIssue) {
	out := make([]string, len(headers))
	var issues []QualityIssue
	for i, header := range headers {
		cleaned := header
		for _, rule := range c.rules {
			next := rule.Apply(cleaned)
			if next != cleaned && rule.Name() == "rename" {
				issues = append(issues, QualityIssue{
					Type:    "rename",
					Column:  next,
					Message: "renamed header " + quote(header),
				})
			}
			cleaned = next
		}
		if cleaned == "" {
			issues = append(issues, QualityIssue{
				Type:    "empty_header",
				Message: "column has no header",
			})
		}
		out[i] = cleaned
	}
	return out, issues
}

// RenameRule maps a raw header, or its trimmed form, to a fixed name.
type RenameRule struct {
	renames map[string]string
}

func NewRenameRule(renames map[string]string) *RenameRule {
	return &RenameRule{renames: renames}
}

func (r *RenameRule) Name() string {
	return "rename"
}

func (r *RenameRule) Apply(header string) string {
	if to, ok := r.renames[header]; ok {
		return to
	}
	if to, ok := r.renames[strings.TrimSpace(header)]; ok {
		return to
	}
	return header
}

// NormalizeRule trims, turns spaces into underscores and lower-cases.
type NormalizeRule struct{}

func NewNormalizeRule() *NormalizeRule {
	return &NormalizeRule{}
}

func (r *NormalizeRule) Name() string {
	return "normalize"
}

func (r *NormalizeRule) Apply(header string) string {
	return NormalizeColumn(header)
}

// NormalizeColumn is the column-name normalisation used for training data.
func NormalizeColumn(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return cases.Lower(language.Und).String(name)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, "\n", `\n`) + `"`
}
