package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"docsign/internal/account"
	"docsign/internal/artifact"
	"docsign/internal/config"
	"docsign/internal/fakeservice"
	"docsign/internal/ratelimit"
	"docsign/internal/transport"
	"docsign/pkg/domain"
)

func runRegister(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("register")
	var req account.RegisterRequest
	role := fs.String("role", string(domain.RoleUser), "account role: admin, user or signer")
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	fs.StringVar(&req.Password, "password", "", "password (or DOCSIGN_PASSWORD)")
	fs.StringVar(&req.ConfirmPassword, "confirm-password", "", "password confirmation")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	req.Role = domain.UserRole(strings.TrimSpace(*role))
	if req.Password == "" {
		req.Password = os.Getenv("DOCSIGN_PASSWORD")
		if req.ConfirmPassword == "" {
			req.ConfirmPassword = req.Password
		}
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	if err := a.accounts.Register(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "registered %s; run docsign login to continue\n", req.Username)
	return nil
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("login")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (or DOCSIGN_PASSWORD)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("DOCSIGN_PASSWORD")
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		return c.usageError("login requires --username and --password")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	u, err := a.accounts.Login(ctx, strings.TrimSpace(*username), *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "logged in as %s (%s)\n", u.Username, u.Role)
	return nil
}

func runLogout(_ context.Context, c *cli, args []string) error {
	if err := c.parse(c.flagSet("logout"), args); err != nil {
		return err
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	if err := a.accounts.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "logged out")
	return nil
}

func runWhoami(ctx context.Context, c *cli, args []string) error {
	if err := c.parse(c.flagSet("whoami"), args); err != nil {
		return err
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	u, ok := a.accounts.Restore(ctx)
	if !ok {
		return account.ErrNotLoggedIn
	}
	printUser(c.stdout, u)
	return nil
}

func runTemplates(_ context.Context, c *cli, args []string) error {
	if err := c.parse(c.flagSet("templates"), args); err != nil {
		return err
	}
	printTemplates(c.stdout)
	return nil
}

func runCreate(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("create")
	name := fs.String("name", "", "document name")
	typ := fs.String("type", "", "template: nda, offer or invoice")
	prompt := fs.String("prompt", "", "instructions for the generated document")
	signerUsername := fs.String("signer-username", "", "signer username")
	signerEmail := fs.String("signer-email", "", "signer email")
	signerFirst := fs.String("signer-first-name", "", "signer first name")
	signerLast := fs.String("signer-last-name", "", "signer last name")
	send := fs.Bool("send", false, "send to the signer after generation")
	var meta repeatStringFlag
	fs.Var(&meta, "meta", "template field as key=value (repeatable)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	metadata := make(map[string]string, len(meta))
	for _, kv := range meta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return c.usageError("invalid --meta %q: expected key=value", kv)
		}
		metadata[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}

	h := ctrl.NewDraft()
	h.Draft.Name = strings.TrimSpace(*name)
	h.Draft.Prompt = strings.TrimSpace(*prompt)
	h.Draft.SetTemplate(domain.DocumentType(strings.ToLower(strings.TrimSpace(*typ))))
	h.Draft.SignerUsername = strings.TrimSpace(*signerUsername)
	h.Draft.SignerEmail = strings.TrimSpace(*signerEmail)
	h.Draft.SignerFirstName = strings.TrimSpace(*signerFirst)
	h.Draft.SignerLastName = strings.TrimSpace(*signerLast)
	for k, v := range metadata {
		h.Draft.SetMetadata(k, v)
	}

	id, err := ctrl.CreateDocument(ctx, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "created document %d (%s)\n", id, h.Draft.TemplateType.Label())
	if !*send {
		return nil
	}
	if err := ctrl.SendToSigner(ctx, id); err != nil {
		return fmt.Errorf("document %d created but not sent: %w", id, err)
	}
	fmt.Fprintf(c.stdout, "document %d sent to %s\n", id, h.Draft.SignerUsername)
	return nil
}

func runList(ctx context.Context, c *cli, args []string) error {
	if err := c.parse(c.flagSet("list"), args); err != nil {
		return err
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	docs, err := ctrl.ListDocuments(ctx)
	if err != nil {
		return err
	}
	printDocuments(c.stdout, docs, ctrl.State)
	return nil
}

func runDownload(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("download")
	id := fs.Int64("id", 0, "document id")
	signed := fs.Bool("signed", false, "fetch the signed rendition")
	out := fs.String("out", "", "write the PDF to this path instead of the artifact store")
	refresh := fs.Bool("refresh", false, "fetch again even when the artifact store holds a copy")
	text := fs.Bool("text", false, "print the text extracted from the PDF")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return c.usageError("download requires --id")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	kind := artifact.KindOriginal
	fetch := ctrl.FetchOriginalPDF
	if *signed {
		kind = artifact.KindSigned
		fetch = ctrl.FetchSignedPDF
	}
	if *out == "" && !*refresh {
		info, loc, ok, err := a.archived(ctx, *id, kind)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(c.stdout, "%s pdf of document %d already stored at %s (%d pages, %d bytes)\n", kind, *id, loc, info.Pages, info.Size)
			c.printText(info, *text)
			return nil
		}
	}
	blob, err := fetch(ctx, *id)
	if err != nil {
		return err
	}
	info, err := c.savePDF(ctx, a, *id, kind, blob, *out)
	if err != nil {
		return err
	}
	c.printText(info, *text)
	return nil
}

func (c *cli) savePDF(ctx context.Context, a *app, id int64, kind artifact.Kind, blob *transport.Blob, out string) (artifact.Info, error) {
	if out != "" {
		data, err := blob.ReadAll()
		if err != nil {
			return artifact.Info{}, fmt.Errorf("read pdf: %w", err)
		}
		info, err := artifact.Inspect(data)
		if err != nil {
			return info, err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return info, fmt.Errorf("write pdf: %w", err)
		}
		fmt.Fprintf(c.stdout, "saved %s (%d pages, %d bytes)\n", out, info.Pages, info.Size)
		return info, nil
	}
	info, loc, err := a.archive(ctx, id, kind, blob)
	if err != nil {
		return info, err
	}
	fmt.Fprintf(c.stdout, "stored %s pdf of document %d at %s (%d pages, %d bytes)\n", kind, id, loc, info.Pages, info.Size)
	return info, nil
}

func (c *cli) printText(info artifact.Info, enabled bool) {
	if !enabled {
		return
	}
	if info.Text == "" {
		fmt.Fprintln(c.stdout, "(no extractable text)")
		return
	}
	fmt.Fprintln(c.stdout, info.Text)
}

func runSend(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("send")
	id := fs.Int64("id", 0, "document id")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return c.usageError("send requires --id")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.SendToSigner(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "document %d sent to signer\n", *id)
	return nil
}

func runStatus(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("status")
	id := fs.Int64("id", 0, "document id; all documents when omitted")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	if *id > 0 {
		status, err := ctrl.SignatureStatus(ctx, *id)
		if err != nil {
			return err
		}
		printStatus(c.stdout, *id, ctrl.State(*id), status)
		return nil
	}
	if _, err := ctrl.ListDocuments(ctx); err != nil {
		return err
	}
	if _, err := ctrl.RefreshStatuses(ctx); err != nil {
		return err
	}
	printDocuments(c.stdout, ctrl.Documents(), ctrl.State)
	return nil
}

func runSummarize(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("summarize")
	id := fs.Int64("id", 0, "document id")
	wait := fs.Bool("wait", false, "poll until the summary is available")
	timeout := fs.Duration("timeout", 2*time.Minute, "how long --wait polls")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return c.usageError("summarize requires --id")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.GenerateSummary(ctx, *id); err != nil {
		return err
	}
	if !*wait {
		fmt.Fprintf(c.stdout, "summary of document %d requested; run docsign summary --id %d\n", *id, *id)
		return nil
	}
	interval, _ := config.ParseDuration(c.cfg.SummaryPollInterval)
	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	summary, err := ctrl.WaitForSummary(waitCtx, *id, interval)
	if err != nil {
		return fmt.Errorf("wait for summary of document %d: %w", *id, err)
	}
	printSummary(c.stdout, summary)
	return nil
}

func runSummary(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("summary")
	id := fs.Int64("id", 0, "document id")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return c.usageError("summary requires --id")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, err := a.controller(ctx)
	if err != nil {
		return err
	}
	summary, ok, err := ctrl.GetSummary(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(c.stdout, "summary of document %d is not available yet\n", *id)
		return nil
	}
	printSummary(c.stdout, summary)
	return nil
}

func runSign(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("sign")
	link := fs.String("link", "", "signing link received by email")
	out := fs.String("out", "", "save the document PDF here before signing")
	reviewOnly := fs.Bool("review-only", false, "show the document without signing")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*link) == "" {
		return c.usageError("sign requires --link")
	}
	a, err := c.services()
	if err != nil {
		return err
	}
	ctrl, parsed, err := a.signerController(*link)
	if err != nil {
		return err
	}
	rec, err := ctrl.SignerDocument(ctx, parsed.DocumentID)
	if err != nil {
		return err
	}
	printDocument(c.stdout, rec)
	if *out != "" {
		blob, err := ctrl.FetchOriginalPDF(ctx, parsed.DocumentID)
		if err != nil {
			return err
		}
		if _, err := c.savePDF(ctx, a, parsed.DocumentID, artifact.KindOriginal, blob, *out); err != nil {
			return err
		}
	}
	if at, ok := rec.Signature.At(); ok {
		fmt.Fprintf(c.stdout, "already signed at %s\n", at.Format(time.RFC3339))
		return nil
	}
	if *reviewOnly {
		return nil
	}
	if err := ctrl.SignDocument(ctx, parsed.DocumentID); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "document %d signed\n", parsed.DocumentID)
	return nil
}

func runServeFake(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("serve-fake")
	addr := fs.String("addr", c.cfg.FakeAddr, "listen address")
	var seeds repeatStringFlag
	fs.Var(&seeds, "seed", "pre-registered user as username:password (repeatable)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	svc, err := newFakeService(c.cfg)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		username, password, ok := strings.Cut(seed, ":")
		if !ok || username == "" || password == "" {
			return c.usageError("invalid --seed %q: expected username:password", seed)
		}
		svc.AddUser(domain.User{Username: username, Email: username + "@example.com", FirstName: username, Role: domain.RoleUser}, password)
	}
	return svc.ListenAndServe(ctx, *addr)
}

func newFakeService(cfg config.FileConfig) (*fakeservice.Service, error) {
	delay, _ := config.ParseDuration(cfg.FakeSummaryDelay)
	opts := []fakeservice.Option{
		fakeservice.WithFrontendURL(cfg.FakeFrontendURL),
		fakeservice.WithSummaryDelay(delay),
	}
	if ttl, _ := config.ParseDuration(cfg.FakeTokenTTL); ttl > 0 {
		opts = append(opts, fakeservice.WithTokenTTL(ttl))
	}
	if cfg.FakeSecret != "" {
		opts = append(opts, fakeservice.WithSecret([]byte(cfg.FakeSecret)))
	}
	if cfg.FakeLoginLimit > 0 {
		window, _ := config.ParseDuration(cfg.FakeLoginWindow)
		if window <= 0 {
			window = time.Minute
		}
		var (
			limiter ratelimit.Limiter
			err     error
		)
		if cfg.RedisAddr != "" {
			limiter, err = ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.FakeLoginLimit, window)
		} else {
			limiter, err = ratelimit.NewMemoryLimiter(cfg.FakeLoginLimit, window)
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, fakeservice.WithLoginLimiter(limiter))
	}
	return fakeservice.New(opts...), nil
}
