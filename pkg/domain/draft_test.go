package domain

import (
	"errors"
	"reflect"
	"testing"
)

func ndaDraft() Draft {
	return Draft{
		Name:         "NDA1",
		TemplateType: TypeNDA,
		Prompt:       "standard terms",
		Metadata: map[string]string{
			"start_date":     "2024-01-01",
			"end_date":       "2024-12-31",
			"recipient_name": "John Doe",
		},
		SignerUsername:  "jdoe",
		SignerEmail:     "j@x.com",
		SignerFirstName: "John",
		SignerLastName:  "Doe",
	}
}

func TestValidateAcceptsCompleteNDA(t *testing.T) {
	d := ndaDraft()
	if err := d.Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
}

func TestValidateListsMissingMetadataInFieldOrder(t *testing.T) {
	d := ndaDraft()
	d.Metadata = map[string]string{}

	err := d.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"start_date", "end_date", "recipient_name"}
	if !reflect.DeepEqual(verr.Missing, want) {
		t.Fatalf("missing = %v, want %v", verr.Missing, want)
	}
}

func TestValidateRejectsEachMissingRequiredKey(t *testing.T) {
	base := map[DocumentType]map[string]string{
		TypeNDA:   {"start_date": "2024-01-01", "end_date": "2024-12-31", "recipient_name": "A"},
		TypeOffer: {"start_date": "2024-01-01", "recipient_name": "A", "role": "Engineer", "salary": "50000"},
		TypeInvoice: {
			"recipient_name": "A", "due_date": "2024-02-01", "item": "Consulting",
			"description": "May", "amount": "10000.50",
		},
	}
	for _, typ := range DocumentTypes() {
		for _, f := range FieldsFor(typ) {
			d := ndaDraft()
			d.TemplateType = typ
			d.Metadata = map[string]string{}
			for k, v := range base[typ] {
				d.Metadata[k] = v
			}
			if err := d.Validate(); err != nil {
				t.Fatalf("%s: complete draft rejected: %v", typ, err)
			}
			delete(d.Metadata, f.Name)
			err := d.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s without %s: expected ValidationError, got %v", typ, f.Name, err)
			}
			if !reflect.DeepEqual(verr.Missing, []string{f.Name}) {
				t.Fatalf("%s without %s: missing = %v", typ, f.Name, verr.Missing)
			}
		}
	}
}

func TestValidateRejectsMalformedValues(t *testing.T) {
	d := ndaDraft()
	d.TemplateType = TypeOffer
	d.Metadata = map[string]string{
		"start_date":     "01/02/2024",
		"recipient_name": "A",
		"role":           "Engineer",
		"salary":         "lots",
	}
	d.SignerEmail = "not-an-email"

	err := d.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", verr.Missing)
	}
	want := []string{"salary", "signer_email", "start_date"}
	if got := verr.Fields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
}

func TestValidateUnknownTemplate(t *testing.T) {
	d := ndaDraft()
	d.TemplateType = "lease"
	err := d.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Malformed["template_type"]; !ok {
		t.Fatalf("expected template_type to be malformed, got %v", verr)
	}
}

func TestSetTemplateKeepsSignerAndMetadata(t *testing.T) {
	d := ndaDraft()
	d.SetTemplate(TypeInvoice)

	if d.SignerUsername != "jdoe" || d.SignerEmail != "j@x.com" || d.SignerFirstName != "John" || d.SignerLastName != "Doe" {
		t.Fatalf("signer identity changed: %+v", d)
	}
	if d.Metadata["end_date"] != "2024-12-31" {
		t.Fatalf("dead metadata key dropped: %v", d.Metadata)
	}
	if d.Metadata["recipient_name"] != "John Doe" {
		t.Fatalf("shared metadata key dropped: %v", d.Metadata)
	}

	err := d.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"due_date", "item", "description", "amount"}
	if !reflect.DeepEqual(verr.Missing, want) {
		t.Fatalf("missing = %v, want %v", verr.Missing, want)
	}
}

func TestFieldsForReturnsCopy(t *testing.T) {
	fields := FieldsFor(TypeNDA)
	fields[0].Name = "changed"
	if FieldsFor(TypeNDA)[0].Name != "start_date" {
		t.Fatalf("FieldsFor leaked internal table")
	}
	if FieldsFor("unknown") != nil {
		t.Fatalf("expected nil fields for unknown type")
	}
}
