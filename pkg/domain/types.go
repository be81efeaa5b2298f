package domain

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"
)

type DocumentType string

const (
	TypeNDA     DocumentType = "nda"
	TypeOffer   DocumentType = "offer"
	TypeInvoice DocumentType = "invoice"
)

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleUser   UserRole = "user"
	RoleSigner UserRole = "signer"
)

type User struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      UserRole `json:"role"`
}

// SignatureState is either unsigned or signed at a point in time.
// The zero value is unsigned.
type SignatureState struct {
	signed bool
	at     time.Time
}

// Unsigned returns the unsigned state.
func Unsigned() SignatureState {
	return SignatureState{}
}

// SignedAt returns the signed state stamped with at.
func SignedAt(at time.Time) SignatureState {
	return SignatureState{signed: true, at: at.UTC()}
}

func (s SignatureState) IsSigned() bool {
	return s.signed
}

// At returns the signing time; ok is false for unsigned documents.
func (s SignatureState) At() (time.Time, bool) {
	return s.at, s.signed
}

// DocumentRecord is the service's view of a generated document.
type DocumentRecord struct {
	ID             int64
	Name           string
	DocumentType   DocumentType
	SignerUsername string
	CreatedAt      time.Time
	Signature      SignatureState
}

type documentWire struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	DocumentType   DocumentType `json:"document_type"`
	SignerUsername string       `json:"signer_username"`
	CreatedAt      time.Time    `json:"created_at"`
	Signed         bool         `json:"signed"`
	SignedAt       *time.Time   `json:"signed_at"`
}

var errSignedWithoutTime = errors.New("signed document is missing signed_at")

func (d DocumentRecord) MarshalJSON() ([]byte, error) {
	w := documentWire{
		ID:             d.ID,
		Name:           d.Name,
		DocumentType:   d.DocumentType,
		SignerUsername: d.SignerUsername,
		CreatedAt:      d.CreatedAt,
	}
	if at, ok := d.Signature.At(); ok {
		w.Signed = true
		w.SignedAt = &at
	}
	return json.Marshal(w)
}

func (d *DocumentRecord) UnmarshalJSON(data []byte) error {
	var w documentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sig := Unsigned()
	switch {
	case w.SignedAt != nil:
		sig = SignedAt(*w.SignedAt)
	case w.Signed:
		return errSignedWithoutTime
	}
	*d = DocumentRecord{
		ID:             w.ID,
		Name:           w.Name,
		DocumentType:   w.DocumentType,
		SignerUsername: w.SignerUsername,
		CreatedAt:      w.CreatedAt,
		Signature:      sig,
	}
	return nil
}

// SignatureStatus is the authoritative signing status of one document.
type SignatureStatus struct {
	Signed   bool       `json:"signed"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
	SignedBy string     `json:"signed_by,omitempty"`
}

func (s *SignatureStatus) UnmarshalJSON(data []byte) error {
	type wire SignatureStatus
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Signed && w.SignedAt == nil {
		return errSignedWithoutTime
	}
	*s = SignatureStatus(w)
	return nil
}

// State converts the flat status into the tagged form. Without a signing
// time the status is unsigned.
func (s SignatureStatus) State() SignatureState {
	if s.Signed && s.SignedAt != nil {
		return SignedAt(*s.SignedAt)
	}
	return Unsigned()
}

// LabelMap maps a display label to a value. The service sometimes sends an
// array instead of an object; entries are then keyed by their 1-based position.
type LabelMap map[string]string

func (m *LabelMap) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		*m = obj
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) == 0 {
		*m = nil
		return nil
	}
	out := make(LabelMap, len(list))
	for i, v := range list {
		out[strconv.Itoa(i+1)] = v
	}
	*m = out
	return nil
}

// Labels returns the map keys in sorted order.
func (m LabelMap) Labels() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary is an AI-derived synopsis of a document.
type Summary struct {
	Terms              string     `json:"terms,omitempty"`
	Responsibilities   string     `json:"responsibilities,omitempty"`
	Dates              LabelMap   `json:"dates,omitempty"`
	SignaturesRequired LabelMap   `json:"signatures_required,omitempty"`
	GeneratedAt        *time.Time `json:"generated_at,omitempty"`
}

// IsEmpty reports whether no summary content is present.
func (s Summary) IsEmpty() bool {
	return s.Terms == "" && s.Responsibilities == "" && len(s.Dates) == 0 && len(s.SignaturesRequired) == 0
}
