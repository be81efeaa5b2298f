package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"docsign/internal/account"
	"docsign/internal/artifact"
	"docsign/internal/config"
	"docsign/internal/lifecycle"
	"docsign/internal/session"
	"docsign/internal/transport"
)

// app wires one CLI invocation: a session, the account service, the
// lifecycle controller and the artifact store.
type app struct {
	cfg      config.FileConfig
	client   *transport.Client
	accounts *account.Service
	closers  []io.Closer

	store       artifact.Store
	storeOpened bool

	ctrl *lifecycle.Controller
}

func newApp(cfg config.FileConfig) (*app, error) {
	a := &app{cfg: cfg}
	backend, err := sessionBackend(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := backend.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	sess, err := session.New(backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	timeout, _ := config.ParseDuration(cfg.RequestTimeout)
	a.client = transport.NewClient(cfg.APIBaseURL, sess, transport.WithTimeout(timeout))
	a.accounts = account.NewService(a.client)
	return a, nil
}

func sessionBackend(cfg config.FileConfig) (session.Backend, error) {
	switch cfg.SessionBackend {
	case "memory":
		return session.NewMemoryBackend(), nil
	case "redis":
		return session.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionRedisKey)
	default:
		return session.NewFileBackend(cfg.SessionFile)
	}
}

func artifactStore(cfg config.FileConfig) (artifact.Store, error) {
	switch cfg.ArtifactBackend {
	case "none":
		return nil, nil
	case "minio":
		return artifact.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return artifact.NewLocalStore(cfg.ArtifactDir)
	}
}

// controller returns the owner controller, restoring the session first.
// Lifecycle state is namespaced by username so several accounts can share
// one Redis tracker.
func (a *app) controller(ctx context.Context) (*lifecycle.Controller, error) {
	if a.ctrl != nil {
		return a.ctrl, nil
	}
	user, ok := a.accounts.Restore(ctx)
	if !ok {
		return nil, account.ErrNotLoggedIn
	}
	opts := []lifecycle.Option{lifecycle.WithStatusConcurrency(a.cfg.StatusConcurrency)}
	if a.cfg.TrackerBackend == "redis" {
		ttl, _ := config.ParseDuration(a.cfg.TrackerTTL)
		tracker, err := lifecycle.NewRedisTracker(a.cfg.RedisAddr, a.cfg.RedisPassword, "docsign:lifecycle:"+strings.ToLower(user.Username), ttl)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, tracker)
		opts = append(opts, lifecycle.WithTracker(tracker))
	}
	a.ctrl = lifecycle.NewController(a.client, opts...)
	return a.ctrl, nil
}

// signerController binds a controller to the token of a signing link. The
// owner session is not consulted.
func (a *app) signerController(raw string) (*lifecycle.Controller, lifecycle.SigningLink, error) {
	link, err := lifecycle.ParseSigningLink(raw)
	if err != nil {
		return nil, link, err
	}
	ctrl, err := lifecycle.NewController(a.client).ForSigner(link)
	return ctrl, link, err
}

// artifacts opens the configured artifact store on first use so commands
// that never archive leave no trace on disk or in MinIO. A nil store means
// archiving is disabled.
func (a *app) artifacts() (artifact.Store, error) {
	if a.storeOpened {
		return a.store, nil
	}
	store, err := artifactStore(a.cfg)
	if err != nil {
		return nil, err
	}
	a.store, a.storeOpened = store, true
	return store, nil
}

var errNoArtifactStore = errors.New("no artifact store configured; use --out")

// archive stores a fetched PDF when an artifact store is configured.
func (a *app) archive(ctx context.Context, id int64, kind artifact.Kind, blob *transport.Blob) (artifact.Info, string, error) {
	store, err := a.artifacts()
	if err != nil {
		blob.Close()
		return artifact.Info{}, "", err
	}
	if store == nil {
		blob.Close()
		return artifact.Info{}, "", errNoArtifactStore
	}
	key := artifact.Key(id, kind)
	info, err := artifact.Archive(ctx, store, key, blob)
	if err != nil {
		return info, "", err
	}
	loc, err := store.Location(ctx, key)
	if err != nil {
		return info, "", err
	}
	return info, loc, nil
}

// archived returns a previously stored artifact. ok is false when archiving
// is disabled or nothing valid is stored under the key.
func (a *app) archived(ctx context.Context, id int64, kind artifact.Kind) (info artifact.Info, loc string, ok bool, err error) {
	store, err := a.artifacts()
	if err != nil || store == nil {
		return artifact.Info{}, "", false, err
	}
	key := artifact.Key(id, kind)
	info, err = artifact.Load(ctx, store, key)
	if errors.Is(err, artifact.ErrNotFound) {
		return artifact.Info{}, "", false, nil
	}
	if err != nil {
		return artifact.Info{}, "", false, err
	}
	loc, err = store.Location(ctx, key)
	if err != nil {
		return artifact.Info{}, "", false, err
	}
	return info, loc, true, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Debug("close failed", "err", err)
		}
	}
}
