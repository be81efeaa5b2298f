package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"docsign/internal/account"
	"docsign/internal/lifecycle"
	"docsign/internal/transport"
	"docsign/pkg/domain"
)

func describeError(err error) string {
	var (
		verr    *domain.ValidationError
		authErr *transport.AuthError
		reqErr  *transport.RequestError
	)
	switch {
	case errors.Is(err, account.ErrNotLoggedIn):
		return "error: not logged in; run docsign login"
	case errors.As(err, &verr):
		var b strings.Builder
		b.WriteString("error: " + err.Error())
		for _, name := range verr.Missing {
			fmt.Fprintf(&b, "\n  %s: required", name)
		}
		for _, name := range sortedKeys(verr.Malformed) {
			fmt.Fprintf(&b, "\n  %s: %s", name, verr.Malformed[name])
		}
		return b.String()
	case errors.As(err, &authErr):
		return "error: " + authErr.Message + "; run docsign login"
	case errors.As(err, &reqErr) && len(reqErr.Details) > 0:
		var b strings.Builder
		b.WriteString("error: " + err.Error())
		for _, name := range sortedKeys(reqErr.Details) {
			fmt.Fprintf(&b, "\n  %s: %v", name, reqErr.Details[name])
		}
		return b.String()
	default:
		return "error: " + err.Error()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printUser(w io.Writer, u domain.User) {
	fmt.Fprintf(w, "username: %s\n", u.Username)
	fmt.Fprintf(w, "name:     %s %s\n", u.FirstName, u.LastName)
	fmt.Fprintf(w, "email:    %s\n", u.Email)
	fmt.Fprintf(w, "role:     %s\n", u.Role)
}

func printTemplates(w io.Writer) {
	for _, t := range domain.DocumentTypes() {
		fmt.Fprintf(w, "%s (%s)\n", t, t.Label())
		for _, f := range domain.FieldsFor(t) {
			line := fmt.Sprintf("  --meta %s=<%s>", f.Name, f.Kind)
			if f.Placeholder != "" {
				line += "  " + f.Placeholder
			}
			fmt.Fprintln(w, line)
		}
	}
}

func signedAt(rec domain.DocumentRecord) string {
	if at, ok := rec.Signature.At(); ok {
		return at.Format(time.RFC3339)
	}
	return "-"
}

func printDocuments(w io.Writer, docs []domain.DocumentRecord, state func(int64) lifecycle.State) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "no documents")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIGNER\tCREATED\tSTATE\tSIGNED AT")
	for _, rec := range docs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Name, rec.DocumentType, rec.SignerUsername,
			rec.CreatedAt.Format(time.RFC3339), state(rec.ID), signedAt(rec))
	}
	_ = tw.Flush()
}

func printDocument(w io.Writer, rec domain.DocumentRecord) {
	fmt.Fprintf(w, "document %d: %s\n", rec.ID, rec.Name)
	fmt.Fprintf(w, "  type:    %s\n", rec.DocumentType.Label())
	fmt.Fprintf(w, "  signer:  %s\n", rec.SignerUsername)
	fmt.Fprintf(w, "  created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  signed:  %s\n", signedAt(rec))
}

func printStatus(w io.Writer, id int64, state lifecycle.State, status domain.SignatureStatus) {
	fmt.Fprintf(w, "document %d: %s\n", id, state)
	if !status.Signed {
		fmt.Fprintln(w, "  not signed")
		return
	}
	if status.SignedAt != nil {
		fmt.Fprintf(w, "  signed at %s", status.SignedAt.Format(time.RFC3339))
	} else {
		fmt.Fprint(w, "  signed")
	}
	if status.SignedBy != "" {
		fmt.Fprintf(w, " by %s", status.SignedBy)
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, s domain.Summary) {
	if s.Terms != "" {
		fmt.Fprintf(w, "Terms:\n  %s\n", s.Terms)
	}
	if s.Responsibilities != "" {
		fmt.Fprintf(w, "Responsibilities:\n  %s\n", s.Responsibilities)
	}
	if len(s.Dates) > 0 {
		fmt.Fprintln(w, "Dates:")
		for _, label := range s.Dates.Labels() {
			fmt.Fprintf(w, "  %s: %s\n", label, s.Dates[label])
		}
	}
	if len(s.SignaturesRequired) > 0 {
		fmt.Fprintln(w, "Signatures required:")
		for _, label := range s.SignaturesRequired.Labels() {
			fmt.Fprintf(w, "  %s: %s\n", label, s.SignaturesRequired[label])
		}
	}
	if s.GeneratedAt != nil {
		fmt.Fprintf(w, "Generated at %s\n", s.GeneratedAt.Format(time.RFC3339))
	}
}
