package fakeservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docsign/pkg/auth"
	"docsign/pkg/domain"
)

type registerRequest struct {
	Username        string          `json:"username"`
	Email           string          `json:"email"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	Role            domain.UserRole `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// fieldErrors mirrors the {field: [messages]} body of a rejected form.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	errs := fieldErrors{}
	for name, value := range map[string]string{
		"username":         req.Username,
		"email":            req.Email,
		"first_name":       req.FirstName,
		"last_name":        req.LastName,
		"password":         req.Password,
		"confirm_password": req.ConfirmPassword,
		"role":             string(req.Role),
	} {
		if strings.TrimSpace(value) == "" {
			errs.add(name, "This field is required.")
		}
	}
	if req.Password != "" && auth.ValidatePassword(req.Password) != nil {
		errs.add("password", fmt.Sprintf("Ensure this field has at least %d characters.", auth.MinPasswordLength))
	}
	switch req.Role {
	case "", domain.RoleAdmin, domain.RoleUser, domain.RoleSigner:
	default:
		errs.add("role", fmt.Sprintf("%q is not a valid choice.", req.Role))
	}
	if len(errs) == 0 && req.Password != req.ConfirmPassword {
		errs.add("confirm_password", "Passwords do not match.")
	}

	var hash string
	if len(errs) == 0 {
		h, err := auth.HashPassword(req.Password)
		if err != nil {
			errs.add("password", "This password cannot be used.")
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		errs.add("username", "A user with that username already exists.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	s.users[req.Username] = &userEntry{
		user: domain.User{
			Username:  req.Username,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
		},
		passwordHash: hash,
	}
	slog.Info("user registered", "username", req.Username, "role", req.Role)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.limiter != nil && !s.limiter.Allow("login:"+strings.ToLower(req.Username)) {
		slog.Warn("login throttled", "username", req.Username)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Request was throttled."})
		return
	}
	s.mu.Lock()
	entry, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || !auth.CheckPassword(req.Password, entry.passwordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	token, err := s.IssueToken(req.Username, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": token})
}

func (s *Service) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	entry := s.users[userFrom(r.Context())]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, entry.user)
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, draftErrors(err))
		return
	}
	owner := userFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	signer, ok := s.users[draft.SignerUsername]
	if !ok {
		// No password: the signer acts only through signing links.
		signer = &userEntry{
			user: domain.User{
				Username:  draft.SignerUsername,
				Email:     draft.SignerEmail,
				FirstName: draft.SignerFirstName,
				LastName:  draft.SignerLastName,
				Role:      domain.RoleSigner,
			},
		}
		s.users[draft.SignerUsername] = signer
		slog.Info("signer created", "username", draft.SignerUsername)
	}
	s.nextID++
	rec := domain.DocumentRecord{
		ID:             s.nextID,
		Name:           draft.Name,
		DocumentType:   draft.TemplateType,
		SignerUsername: draft.SignerUsername,
		CreatedAt:      s.now().UTC(),
		Signature:      domain.Unsigned(),
	}
	issuer := fullName(s.users[owner].user)
	s.documents[rec.ID] = &documentEntry{
		record: rec,
		owner:  owner,
		draft:  draft,
		pdf:    RenderPDF(rec.Name, documentLines(draft, issuer)),
	}
	slog.Info("document generated", "document_id", rec.ID, "owner", owner)
	writeJSON(w, http.StatusCreated, rec)
}

func draftErrors(err error) fieldErrors {
	errs := fieldErrors{}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		errs.add("non_field_errors", err.Error())
		return errs
	}
	for _, name := range verr.Missing {
		errs.add(name, "This field is required.")
	}
	for name, reason := range verr.Malformed {
		errs.add(name, reason)
	}
	return errs
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	docs := s.sortedDocuments(userFrom(r.Context()))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, docs)
}

// lookup returns the document when the caller owns it or is its signer.
func (s *Service) lookup(r *http.Request) (*documentEntry, bool, bool) {
	id, err := docID(r)
	if err != nil {
		return nil, false, false
	}
	doc, ok := s.documents[id]
	if !ok {
		return nil, false, false
	}
	user := userFrom(r.Context())
	return doc, true, doc.owner == user || doc.record.SignerUsername == user
}

func (s *Service) handleViewPDF(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, found, allowed := s.lookup(r)
	var data []byte
	var name string
	if found && allowed {
		data, name = doc.pdf, doc.record.Name
	}
	s.mu.Unlock()
	if !found || !allowed {
		writeNotFound(w)
		return
	}
	writePDF(w, name+".pdf", data)
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, found, _ := s.lookup(r)
	if !found || doc.owner != userFrom(r.Context()) {
		writeNotFound(w)
		return
	}
	if doc.record.SignerUsername == "" {
		writeError(w, http.StatusBadRequest, "No signer associated with this document.")
		return
	}
	token, err := s.IssueToken(doc.record.SignerUsername, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send document to signer.")
		return
	}
	link := s.signingLink(token, doc.record.ID)
	doc.links = append(doc.links, link)
	slog.Info("signing link issued", "document_id", doc.record.ID, "signer", doc.record.SignerUsername, "link", link)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document sent to signer successfully."})
}

func (s *Service) handleSign(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, found, _ := s.lookup(r)
	if !found {
		writeNotFound(w)
		return
	}
	user := userFrom(r.Context())
	if doc.record.SignerUsername != user {
		writeError(w, http.StatusForbidden, "You are not authorized to sign this document.")
		return
	}
	if doc.record.Signature.IsSigned() {
		writeError(w, http.StatusBadRequest, "This document has already been signed.")
		return
	}
	signerName := fullName(s.users[user].user)
	lines := append(documentLines(doc.draft, fullName(s.users[doc.owner].user)), "Signed by "+signerName)
	doc.record.Signature = domain.SignedAt(s.now())
	doc.signedBy = user
	doc.signedPDF = RenderPDF(doc.record.Name, lines)
	slog.Info("document signed", "document_id", doc.record.ID, "signer", user)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Document signed successfully."})
}

func (s *Service) handleViewSignedPDF(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, found, allowed := s.lookup(r)
	var data []byte
	var name string
	if found && allowed {
		data, name = doc.signedPDF, doc.record.Name
	}
	s.mu.Unlock()
	switch {
	case !found:
		writeNotFound(w)
	case !allowed:
		writeError(w, http.StatusForbidden, "Unauthorized")
	case data == nil:
		writeError(w, http.StatusNotFound, "Signed document not found.")
	default:
		writePDF(w, name+"_signed.pdf", data)
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, found, _ := s.lookup(r)
	var status domain.SignatureStatus
	if found {
		if at, ok := doc.record.Signature.At(); ok {
			status = domain.SignatureStatus{Signed: true, SignedAt: &at, SignedBy: doc.signedBy}
		}
	}
	s.mu.Unlock()
	if !found {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handleSignerDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, found, allowed := s.lookup(r)
	var rec domain.DocumentRecord
	if found {
		rec = doc.record
	}
	s.mu.Unlock()
	switch {
	case !found:
		writeNotFound(w)
	case !allowed:
		writeError(w, http.StatusForbidden, "Unauthorized")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Service) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, found, allowed := s.lookup(r)
	if !found {
		writeNotFound(w)
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "You are not authorized to summarize this document.")
		return
	}
	now := s.now().UTC()
	summary := buildSummary(doc.draft, fullName(s.users[doc.owner].user), now)
	doc.summary = &summary
	doc.readyAt = now.Add(s.summaryDelay)
	slog.Info("summary generated", "document_id", doc.record.ID, "delay", s.summaryDelay)
	if s.summaryDelay > 0 {
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "Summary generation started."})
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Service) handleViewSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, found, allowed := s.lookup(r)
	var summary *domain.Summary
	if found && allowed && doc.summary != nil && !s.now().Before(doc.readyAt) {
		summary = doc.summary
	}
	s.mu.Unlock()
	switch {
	case !found:
		writeNotFound(w)
	case !allowed:
		writeError(w, http.StatusForbidden, "Unauthorized")
	case summary == nil:
		writeError(w, http.StatusNotFound, "Summary not available.")
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func documentLines(d domain.Draft, issuer string) []string {
	lines := []string{d.TemplateType.Label(), "Issuer: " + issuer}
	for _, f := range domain.FieldsFor(d.TemplateType) {
		lines = append(lines, f.Label+": "+d.Metadata[f.Name])
	}
	return append(lines, d.Prompt)
}

func buildSummary(d domain.Draft, issuer string, now time.Time) domain.Summary {
	recipient := strings.TrimSpace(d.SignerFirstName + " " + d.SignerLastName)
	dates := domain.LabelMap{}
	for _, f := range domain.FieldsFor(d.TemplateType) {
		if f.Kind == domain.KindDate && d.Metadata[f.Name] != "" {
			dates[f.Label] = d.Metadata[f.Name]
		}
	}
	return domain.Summary{
		Terms:            fmt.Sprintf("%s issued by %s to %s. %s", d.TemplateType.Label(), issuer, recipient, d.Prompt),
		Responsibilities: responsibilities[d.TemplateType],
		Dates:            dates,
		SignaturesRequired: domain.LabelMap{
			"Issuer":    issuer,
			"Recipient": recipient,
		},
		GeneratedAt: &now,
	}
}

var responsibilities = map[domain.DocumentType]string{
	domain.TypeNDA:     "The recipient keeps disclosed information confidential for the agreement term.",
	domain.TypeOffer:   "The candidate accepts the role and reports on the start date.",
	domain.TypeInvoice: "The recipient pays the stated amount by the due date.",
}
