package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayrohq/ayro/internal/models"
)

const appColumns = `id::text, name, token, created_at`

func scanApp(row pgx.Row) (models.App, error) {
	var app models.App
	if err := row.Scan(&app.ID, &app.Name, &app.Token, &app.CreatedAt); err != nil {
		return models.App{}, mapErr(err)
	}
	return app, nil
}

func (s *Store) GetApp(ctx context.Context, id string) (models.App, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.App{}, err
	}
	return scanApp(s.db.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE id = $1`, pgID))
}

func (s *Store) GetAppByToken(ctx context.Context, token string) (models.App, error) {
	return scanApp(s.db.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE token = $1`, token))
}

func (s *Store) CreateApp(ctx context.Context, app models.App) (models.App, error) {
	id := uuid.New()
	if app.ID != "" {
		parsed, err := uuid.Parse(app.ID)
		if err != nil {
			return models.App{}, fmt.Errorf("invalid app id: %w", err)
		}
		id = parsed
	}
	return scanApp(s.db.QueryRow(ctx,
		`INSERT INTO apps (id, name, token, created_at) VALUES ($1, $2, $3, $4) RETURNING `+appColumns,
		id, app.Name, app.Token, utcNow(),
	))
}

// --- integrations ---

const integrationColumns = `id::text, app_id::text, type, channel, COALESCE(external_id, ''), configuration, created_at, updated_at`

func scanIntegration(row pgx.Row) (models.Integration, error) {
	var (
		i       models.Integration
		typ     string
		channel string
		cfg     []byte
	)
	if err := row.Scan(&i.ID, &i.AppID, &typ, &channel, &i.ExternalID, &cfg, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return models.Integration{}, mapErr(err)
	}
	i.Type = models.IntegrationType(typ)
	i.Channel = models.Channel(channel)
	i.Configuration = unmarshalMap(cfg)
	return i, nil
}

func (s *Store) GetIntegration(ctx context.Context, appID string, channel models.Channel) (models.Integration, error) {
	pgID, err := parseID(appID)
	if err != nil {
		return models.Integration{}, err
	}
	return scanIntegration(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE app_id = $1 AND channel = $2`,
		pgID, string(channel),
	))
}

func (s *Store) FindIntegrationByExternalID(ctx context.Context, channel models.Channel, externalID string) (models.Integration, error) {
	return scanIntegration(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE channel = $1 AND external_id = $2`,
		string(channel), externalID,
	))
}

func (s *Store) UpsertIntegration(ctx context.Context, integration models.Integration) (models.Integration, error) {
	appID, err := parseID(integration.AppID)
	if err != nil {
		return models.Integration{}, err
	}
	cfg, err := marshalJSON(integration.Configuration)
	if err != nil {
		return models.Integration{}, err
	}
	now := utcNow()
	return scanIntegration(s.db.QueryRow(ctx, `
INSERT INTO integrations (id, app_id, type, channel, external_id, configuration, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (app_id, channel) DO UPDATE SET
    type = EXCLUDED.type,
    external_id = EXCLUDED.external_id,
    configuration = EXCLUDED.configuration,
    updated_at = EXCLUDED.updated_at
RETURNING `+integrationColumns,
		uuid.New(), appID, string(integration.Type), string(integration.Channel), nullable(integration.ExternalID), cfg, now,
	))
}

// --- plugins ---

const pluginColumns = `id::text, app_id::text, type, channels, configuration, created_at, updated_at`

func scanPlugin(row pgx.Row) (models.Plugin, error) {
	var (
		p        models.Plugin
		typ      string
		channels []string
		cfg      []byte
	)
	if err := row.Scan(&p.ID, &p.AppID, &typ, &channels, &cfg, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Plugin{}, mapErr(err)
	}
	p.Type = models.PluginType(typ)
	for _, c := range channels {
		p.Channels = append(p.Channels, models.Channel(c))
	}
	p.Configuration = unmarshalMap(cfg)
	return p, nil
}

func (s *Store) GetPlugin(ctx context.Context, appID string, pluginType models.PluginType) (models.Plugin, error) {
	pgID, err := parseID(appID)
	if err != nil {
		return models.Plugin{}, err
	}
	return scanPlugin(s.db.QueryRow(ctx,
		`SELECT `+pluginColumns+` FROM plugins WHERE app_id = $1 AND type = $2`,
		pgID, string(pluginType),
	))
}

func (s *Store) UpsertPlugin(ctx context.Context, plugin models.Plugin) (models.Plugin, error) {
	appID, err := parseID(plugin.AppID)
	if err != nil {
		return models.Plugin{}, err
	}
	cfg, err := marshalJSON(plugin.Configuration)
	if err != nil {
		return models.Plugin{}, err
	}
	channels := make([]string, 0, len(plugin.Channels))
	for _, c := range plugin.Channels {
		channels = append(channels, string(c))
	}
	now := utcNow()
	return scanPlugin(s.db.QueryRow(ctx, `
INSERT INTO plugins (id, app_id, type, channels, configuration, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (app_id, type) DO UPDATE SET
    channels = EXCLUDED.channels,
    configuration = EXCLUDED.configuration,
    updated_at = EXCLUDED.updated_at
RETURNING `+pluginColumns,
		uuid.New(), appID, string(plugin.Type), channels, cfg, now,
	))
}
