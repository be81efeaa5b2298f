package domain

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindDate   FieldKind = "date"
	KindNumber FieldKind = "number"
)

// DateLayout is the wire format of date metadata values.
const DateLayout = "2006-01-02"

// Field describes one template-specific metadata input.
type Field struct {
	Label       string
	Name        string
	Kind        FieldKind
	Placeholder string
}

var documentTypes = []DocumentType{TypeNDA, TypeOffer, TypeInvoice}

var typeLabels = map[DocumentType]string{
	TypeNDA:     "Non-Disclosure Agreement",
	TypeOffer:   "Job Offer Letter",
	TypeInvoice: "Invoice",
}

var templateFields = map[DocumentType][]Field{
	TypeNDA: {
		{Label: "Start Date", Name: "start_date", Kind: KindDate},
		{Label: "End Date", Name: "end_date", Kind: KindDate},
		{Label: "Recipient Name", Name: "recipient_name", Kind: KindText, Placeholder: "e.g., John Doe"},
	},
	TypeOffer: {
		{Label: "Start Date", Name: "start_date", Kind: KindDate},
		{Label: "Recipient Name", Name: "recipient_name", Kind: KindText, Placeholder: "e.g., John Doe"},
		{Label: "Role", Name: "role", Kind: KindText, Placeholder: "e.g., Software Engineer"},
		{Label: "Salary", Name: "salary", Kind: KindNumber, Placeholder: "e.g., 50000"},
	},
	TypeInvoice: {
		{Label: "Recipient Name", Name: "recipient_name", Kind: KindText, Placeholder: "e.g., John Doe"},
		{Label: "Due Date", Name: "due_date", Kind: KindDate},
		{Label: "Item", Name: "item", Kind: KindText, Placeholder: "e.g., Consulting"},
		{Label: "Description", Name: "description", Kind: KindText, Placeholder: "e.g., Consulting services for May"},
		{Label: "Amount", Name: "amount", Kind: KindNumber, Placeholder: "e.g., 10000"},
	},
}

// DocumentTypes lists the supported templates in display order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

func (t DocumentType) Valid() bool {
	_, ok := templateFields[t]
	return ok
}

// Label returns a human-readable template name.
func (t DocumentType) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// FieldsFor returns the ordered metadata fields required by t, or nil for an
// unknown type.
func FieldsFor(t DocumentType) []Field {
	fields, ok := templateFields[t]
	if !ok {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
