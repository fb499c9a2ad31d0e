package browser

import (
	"fmt"
	"strings"
)

// Locator identifies zero, one or many elements on a page.
// Exactly one of CSS, Role, Label or Text is the primary strategy.
type Locator struct {
	CSS     string   `yaml:"css,omitempty" json:"css,omitempty"`
	Role    string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
	Text    string   `yaml:"text,omitempty" json:"text,omitempty"`
	HasText string   `yaml:"has_text,omitempty" json:"has_text,omitempty"`
	Exact   bool     `yaml:"exact,omitempty" json:"exact,omitempty"`
	Within  *Locator `yaml:"within,omitempty" json:"within,omitempty"`
}

// CSS locates elements by CSS or Playwright selector.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// Role locates elements by ARIA role and accessible name.
func Role(role, name string) Locator { return Locator{Role: role, Name: name} }

// Label locates form controls by their label text.
func Label(text string) Locator { return Locator{Label: text} }

// Text locates elements by visible text.
func Text(text string) Locator { return Locator{Text: text} }

// Filter narrows the locator to elements containing text.
func (l Locator) Filter(hasText string) Locator {
	l.HasText = hasText
	return l
}

// In scopes the locator to descendants of parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

// Strict requires exact text matches for name, label and text.
func (l Locator) Strict() Locator {
	l.Exact = true
	return l
}

// IsZero reports whether no strategy is set.
func (l Locator) IsZero() bool {
	return l.CSS == "" && l.Role == "" && l.Label == "" && l.Text == ""
}

// Validate checks that exactly one primary strategy is set, recursively.
func (l Locator) Validate() error {
	n := 0
	for _, s := range []string{l.CSS, l.Role, l.Label, l.Text} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return fmt.Errorf("locator has no strategy (css, role, label or text)")
	case n > 1:
		return fmt.Errorf("locator %s sets more than one strategy", l)
	case l.Name != "" && l.Role == "":
		return fmt.Errorf("locator %s sets name without role", l)
	}
	if l.Within != nil {
		if err := l.Within.Validate(); err != nil {
			return fmt.Errorf("within: %w", err)
		}
	}
	return nil
}

// String describes the locator for logs and diagnostics.
func (l Locator) String() string {
	var b strings.Builder
	switch {
	case l.CSS != "":
		fmt.Fprintf(&b, "css %q", l.CSS)
	case l.Role != "":
		fmt.Fprintf(&b, "role %s", l.Role)
		if l.Name != "" {
			fmt.Fprintf(&b, " name %q", l.Name)
		}
	case l.Label != "":
		fmt.Fprintf(&b, "label %q", l.Label)
	case l.Text != "":
		fmt.Fprintf(&b, "text %q", l.Text)
	default:
		b.WriteString("<empty>")
	}
	if l.HasText != "" {
		fmt.Fprintf(&b, " has-text %q", l.HasText)
	}
	if l.Exact {
		b.WriteString(" exact")
	}
	if l.Within != nil {
		fmt.Fprintf(&b, " within (%s)", l.Within.String())
	}
	return b.String()
}

// Hints returns the strings that name this locator, used for redaction checks.
func (l Locator) Hints() []string {
	hints := []string{l.CSS, l.Name, l.Label, l.Text}
	if l.Within != nil {
		hints = append(hints, l.Within.Hints()...)
	}
	return hints
}
