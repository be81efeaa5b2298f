package lifecycle

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"docsign/internal/session"
	"docsign/pkg/domain"
)

// SigningLink is the parsed form of <frontend>/sign?token=<jwt>&doc=<id>.
type SigningLink struct {
	Token      string
	DocumentID int64
	// Signer is the unverified subject of Token, empty for opaque tokens.
	Signer string
}

// ParseSigningLink extracts the signer token and document id from a link.
func ParseSigningLink(raw string) (SigningLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SigningLink{}, fmt.Errorf("invalid signing link: %w", &domain.ValidationError{
			Malformed: map[string]string{"link": err.Error()},
		})
	}
	q := u.Query()
	verr := &domain.ValidationError{}
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		verr.Missing = append(verr.Missing, "token")
	}
	rawID := strings.TrimSpace(q.Get("doc"))
	var id int64
	if rawID == "" {
		verr.Missing = append(verr.Missing, "doc")
	} else if id, err = strconv.ParseInt(rawID, 10, 64); err != nil || id <= 0 {
		verr.Malformed = map[string]string{"doc": "expected a positive document id"}
	}
	if len(verr.Missing) > 0 || len(verr.Malformed) > 0 {
		return SigningLink{}, fmt.Errorf("invalid signing link: %w", verr)
	}
	return SigningLink{Token: token, DocumentID: id, Signer: session.TokenSubject(token)}, nil
}
