package domain

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Draft is a document creation request that has not been submitted yet.
type Draft struct {
	Name            string            `json:"name"`
	TemplateType    DocumentType      `json:"template_type"`
	Prompt          string            `json:"prompt"`
	Metadata        map[string]string `json:"metadata"`
	SignerUsername  string            `json:"signer_username"`
	SignerEmail     string            `json:"signer_email"`
	SignerFirstName string            `json:"signer_first_name"`
	SignerLastName  string            `json:"signer_last_name"`
}

// SetTemplate switches the template. Signer fields and previously entered
// metadata are kept; keys outside the new template stay in the map.
func (d *Draft) SetTemplate(t DocumentType) {
	d.TemplateType = t
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
}

// SetMetadata records one metadata value.
func (d *Draft) SetMetadata(name, value string) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
	d.Metadata[name] = value
}

// Fields returns the metadata inputs relevant to the current template.
func (d *Draft) Fields() []Field {
	return FieldsFor(d.TemplateType)
}

// Validate reports every missing or malformed field, or nil when the draft
// can be submitted.
func (d *Draft) Validate() error {
	verr := &ValidationError{}
	required := []struct {
		name  string
		value string
	}{
		{"name", d.Name},
		{"template_type", string(d.TemplateType)},
		{"prompt", d.Prompt},
		{"signer_username", d.SignerUsername},
		{"signer_email", d.SignerEmail},
		{"signer_first_name", d.SignerFirstName},
		{"signer_last_name", d.SignerLastName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.Missing = append(verr.Missing, r.name)
		}
	}
	if email := strings.TrimSpace(d.SignerEmail); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			verr.addMalformed("signer_email", "not a valid email address")
		}
	}
	if d.TemplateType != "" && !d.TemplateType.Valid() {
		verr.addMalformed("template_type", fmt.Sprintf("unknown document type %q", d.TemplateType))
	}
	for _, f := range d.Fields() {
		value := strings.TrimSpace(d.Metadata[f.Name])
		if value == "" {
			verr.Missing = append(verr.Missing, f.Name)
			continue
		}
		if reason := checkKind(f.Kind, value); reason != "" {
			verr.addMalformed(f.Name, reason)
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func checkKind(kind FieldKind, value string) string {
	switch kind {
	case KindDate:
		if _, err := time.Parse(DateLayout, value); err != nil {
			return "expected a date in YYYY-MM-DD form"
		}
	case KindNumber:
		if _, err := decimal.NewFromString(value); err != nil {
			return "expected a number"
		}
	}
	return ""
}

// ValidationError lists draft fields that block submission.
type ValidationError struct {
	Missing   []string
	Malformed map[string]string
}

func (e *ValidationError) addMalformed(field, reason string) {
	if e.Malformed == nil {
		e.Malformed = make(map[string]string)
	}
	e.Malformed[field] = reason
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Malformed) == 0
}

// Fields returns every offending field name, missing ones first.
func (e *ValidationError) Fields() []string {
	out := append([]string(nil), e.Missing...)
	keys := make([]string, 0, len(e.Malformed))
	for k := range e.Malformed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append(out, keys...)
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Malformed) > 0 {
		keys := make([]string, 0, len(e.Malformed))
		for k := range e.Malformed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		bad := make([]string, 0, len(keys))
		for _, k := range keys {
			bad = append(bad, k+" ("+e.Malformed[k]+")")
		}
		parts = append(parts, "invalid fields: "+strings.Join(bad, ", "))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}
