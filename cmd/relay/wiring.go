package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	machinery "github.com/RichardKnop/machinery/v1"
	machineryConfig "github.com/RichardKnop/machinery/v1/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/blankon/submission-relay/internal/config"
	"github.com/blankon/submission-relay/internal/notification"
	"github.com/blankon/submission-relay/internal/objectstore"
	"github.com/blankon/submission-relay/internal/source"
	"github.com/blankon/submission-relay/internal/storage"
	"github.com/blankon/submission-relay/internal/submission/endpoint"
	"github.com/blankon/submission-relay/internal/submission/model"
	"github.com/blankon/submission-relay/internal/submission/service"
)

// relayApp holds the long lived collaborators, built once per process
type relayApp struct {
	relay   *service.Relay
	audit   endpoint.AuditReader // nil unless the audit driver can list
	closers []func() error
}

// Close releases collaborators in reverse build order and logs what fails
func (a *relayApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to close relay collaborator")
		}
	}
}

func buildRelayApp(ctx context.Context, cfg config.RelayConfig, logger zerolog.Logger) (*relayApp, error) {
	a := &relayApp{}

	store, err := newObjectStore(ctx, cfg.Storage, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditLog, err := newAuditLog(cfg.Audit, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := notification.NewMailgunNotifier(cfg.Mail.Domain, cfg.Mail.APIKey, cfg.Mail.Sender)
	if err != nil {
		a.Close()
		return nil, err
	}

	timeout := time.Duration(cfg.Source.TimeoutSeconds) * time.Second
	fetcher := source.NewRouter(source.NewHTTPSource(timeout, cfg.Source.MaxBytes), source.NewGitSource(cfg.Source.MaxBytes))

	a.relay, err = service.NewRelay(
		service.Dependencies{
			Source:   fetcher,
			Store:    store,
			Notifier: notifier,
			Audit:    auditLog,
		},
		service.Options{
			Bucket:                   cfg.Storage.Bucket,
			DisplayPrefix:            objectstore.DisplayPrefix(cfg.Storage.Driver),
			ConsolidateNotifications: cfg.Relay.ConsolidateNotifications,
			Logger:                   logger,
		},
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig, a *relayApp) (service.ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageDriverGCS:
		store, err := objectstore.NewGCSStore(ctx, cfg.ServiceAccountKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.StorageDriverS3:
		return objectstore.NewS3Store(cfg.Region)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func newAuditLog(cfg config.AuditConfig, a *relayApp) (service.AuditLog, error) {
	switch cfg.Driver {
	case config.AuditDriverSQLite:
		store, err := openAuditStore(cfg, a)
		if err != nil {
			return nil, err
		}
		a.audit = store
		return store, nil
	case config.AuditDriverDynamoDB:
		return storage.NewDynamoAuditLog(cfg.Region, cfg.Table)
	}
	return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
}

func openAuditStore(cfg config.AuditConfig, a *relayApp) (*storage.AuditStore, error) {
	if cfg.Driver != config.AuditDriverSQLite {
		return nil, fmt.Errorf("audit driver %q can't be listed locally", cfg.Driver)
	}
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return storage.NewAuditStore(context.Background(), db, cfg.Table, cfg.MaxRecords)
}

func newMachineryServer(cfg config.RelayConfig) (*machinery.Server, error) {
	return machinery.NewServer(
		&machineryConfig.Config{
			Broker:        cfg.Redis,
			ResultBackend: cfg.Redis,
			DefaultQueue:  cfg.Queue,
		},
	)
}

// newEvent wraps a single submission request in a one record event
func newEvent(req model.SubmissionRequest) ([]byte, error) {
	message, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return json.Marshal(model.Event{
		Records: []model.EventRecord{
			{
				Sns: model.Notification{
					MessageID: uuid.New().String(),
					Message:   string(message),
				},
			},
		},
	})
}

var fieldValidate = validator.New()

type submissionField struct {
	label    string
	value    *string
	validate func(string) error
}

// submissionFields lists what `send` needs, in prompt order
func submissionFields(req *model.SubmissionRequest) []submissionField {
	return []submissionField{
		{"Student email", &req.UserEmail, validateEmail},
		{"Artifact URL (release zip, or https://host/owner/repo.git#tag)", &req.GithubRepo, validateArtifactURL},
		{"Release tag", &req.ReleaseTag, requireValue},
	}
}

func requireValue(input string) error {
	if input == "" {
		return errors.New("value should not be empty")
	}
	return nil
}

func validateEmail(input string) error {
	if err := fieldValidate.Var(input, "required,email"); err != nil {
		return errors.New("value should be an email address")
	}
	return nil
}

// validateArtifactURL accepts absolute URLs the relay can fetch, a git URL may carry a #tag
func validateArtifactURL(input string) error {
	if err := fieldValidate.Var(input, "required,url"); err != nil {
		return errors.New("value should be an absolute artifact URL")
	}
	return nil
}
