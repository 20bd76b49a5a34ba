// Package main seeds providers, clients, roles and login actions from a
// YAML file. Every row is upserted by id, so re-running a seed is safe.
//
// Actions that would fail validation against the configured entity
// catalog are refused before anything is written.
//
// Import Path: oauthbridge.io/bridge/cmd/seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"oauthbridge.io/bridge/internal/action"
	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/infrastructure"
	"oauthbridge.io/bridge/internal/pkg/logger"
	"oauthbridge.io/bridge/internal/repository/postgres"
	"oauthbridge.io/bridge/migrations"
)

func main() {
	file := flag.String("file", "seed.yaml", "path to the seed file")
	flag.Parse()

	if err := run(*file); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	seed, err := parseSeed(raw)
	if err != nil {
		return err
	}

	catalog, err := action.NewCatalog(cfg.Entities)
	if err != nil {
		return fmt.Errorf("build entity catalog: %w", err)
	}
	if err := seed.validate(catalog); err != nil {
		return err
	}

	ctx := context.Background()
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if _, err := migrations.Up(ctx, db.Pool); err != nil {
			return err
		}
	}

	logger.Info("Starting data seeding...", zap.String("file", path))
	store := postgres.NewStore(db.Pool)
	if err := store.WithTx(ctx, func(tx *postgres.Store) error {
		return seed.apply(ctx, tx)
	}); err != nil {
		return err
	}

	logger.Info("Data seeding completed successfully",
		zap.Int("roles", len(seed.Roles)),
		zap.Int("providers", len(seed.Providers)),
		zap.Int("actions", len(seed.Actions)),
	)
	return nil
}

type seedFile struct {
	Roles     []seedRole     `yaml:"roles"`
	Providers []seedProvider `yaml:"providers"`
	Actions   []seedAction   `yaml:"actions"`
}

type seedRole struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type seedProvider struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	RedirectURI string       `yaml:"redirect_uri"`
	Status      string       `yaml:"status"`
	Clients     []seedClient `yaml:"clients"`
}

type seedClient struct {
	ID           string `yaml:"id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Host         string `yaml:"host"`
	RoleID       string `yaml:"role_id"`
}

type seedAction struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Clients    []string        `yaml:"clients"`
	Source     string          `yaml:"source"`
	ModelClass string          `yaml:"model_class"`
	Status     string          `yaml:"status"`
	Data       orderedMappings `yaml:"data"`
}

// orderedMappings accepts either a mapping of target: source, kept in file
// order, or a list of {source, target} pairs.
type orderedMappings []domain.FieldMapping

func (m *orderedMappings) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(orderedMappings, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: source of %q must be a path", val.Line, key.Value)
			}
			out = append(out, domain.FieldMapping{Source: val.Value, Target: key.Value})
		}
		*m = out
		return nil
	case yaml.SequenceNode:
		var pairs []domain.FieldMapping
		if err := node.Decode(&pairs); err != nil {
			return err
		}
		*m = pairs
		return nil
	}
	return fmt.Errorf("line %d: data must be a mapping or a list", node.Line)
}

func parseSeed(raw []byte) (*seedFile, error) {
	var s seedFile
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range s.Roles {
		s.Roles[i].ID = orNewID(s.Roles[i].ID)
	}
	for i := range s.Providers {
		p := &s.Providers[i]
		p.ID = orNewID(p.ID)
		if p.Status == "" {
			p.Status = string(domain.ProviderStatusInstalled)
		}
		for j := range p.Clients {
			p.Clients[j].ID = orNewID(p.Clients[j].ID)
		}
	}
	for i := range s.Actions {
		a := &s.Actions[i]
		a.ID = orNewID(a.ID)
		if a.Status == "" {
			a.Status = string(domain.ActionStatusEnabled)
		}
	}
	return &s, nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.Must(uuid.NewV7()).String()
}

func (s *seedFile) validate(catalog *action.Catalog) error {
	var errs []error
	for _, p := range s.Providers {
		switch domain.ProviderStatus(p.Status) {
		case domain.ProviderStatusInstalled, domain.ProviderStatusNotInstalled:
		default:
			errs = append(errs, fmt.Errorf("provider %q: unknown status %q", p.Name, p.Status))
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("provider %s: name is required", p.ID))
		}
	}
	for _, a := range s.Actions {
		switch domain.ActionStatus(a.Status) {
		case domain.ActionStatusEnabled, domain.ActionStatusDisabled:
		default:
			errs = append(errs, fmt.Errorf("action %q: unknown status %q", a.Name, a.Status))
		}
	}
	errs = append(errs, action.ValidateActions(catalog, s.loginActions())...)
	for _, err := range errs {
		logger.Error("Invalid seed entry", zap.Error(err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("seed file rejected: %w", errors.Join(errs...))
	}
	return nil
}

func (s *seedFile) loginActions() []*domain.LoginAction {
	out := make([]*domain.LoginAction, 0, len(s.Actions))
	for _, a := range s.Actions {
		out = append(out, &domain.LoginAction{
			ID:                a.ID,
			ProviderClientIDs: a.Clients,
			Name:              a.Name,
			Source:            a.Source,
			ModelClass:        a.ModelClass,
			Data:              []domain.FieldMapping(a.Data),
			Status:            domain.ActionStatus(a.Status),
		})
	}
	return out
}

// apply writes roles first so clients can reference them.
func (s *seedFile) apply(ctx context.Context, store *postgres.Store) error {
	for _, r := range s.Roles {
		if err := store.Roles.Upsert(ctx, &domain.Role{ID: r.ID, Name: r.Name}); err != nil {
			return err
		}
		logger.Info("Seeded role", zap.String("role", r.Name))
	}
	for _, p := range s.Providers {
		if err := store.Providers.Upsert(ctx, &domain.Provider{
			ID:          p.ID,
			Name:        p.Name,
			RedirectURI: p.RedirectURI,
			Status:      domain.ProviderStatus(p.Status),
		}); err != nil {
			return err
		}
		for _, c := range p.Clients {
			if err := store.Clients.Upsert(ctx, &domain.ProviderClient{
				ID:           c.ID,
				ProviderID:   p.ID,
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				Host:         c.Host,
				RoleID:       c.RoleID,
			}); err != nil {
				return err
			}
		}
		logger.Info("Seeded provider", zap.String("provider", p.Name), zap.Int("clients", len(p.Clients)))
	}
	for _, a := range s.loginActions() {
		if err := store.Actions.Upsert(ctx, a); err != nil {
			return err
		}
		logger.Info("Seeded login action", zap.String("action", a.Name), zap.String("id", a.ID))
	}
	return nil
}
