package blocks

import "github.com/microcosm-cc/bluemonday"

// Sanitizer strips every element except <p> so that foreign markup does not
// leak into span text. Text content of removed elements is kept.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p")
	return &Sanitizer{policy: p}
}

// Sanitize returns input with disallowed markup removed. Text is entity
// escaped on output; TextToBlocks decodes it again.
func (s *Sanitizer) Sanitize(input string) string {
	return s.policy.Sanitize(input)
}
