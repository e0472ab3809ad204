package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayrohq/ayro/internal/models"
)

const deviceColumns = `id::text, app_id::text, user_id::text, uid, platform, channel, push_token, info, created_at, updated_at`

func scanDevice(row pgx.Row) (models.Device, error) {
	var (
		d        models.Device
		platform string
		channel  string
		info     []byte
	)
	if err := row.Scan(&d.ID, &d.AppID, &d.UserID, &d.UID, &platform, &channel, &d.PushToken, &info, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return models.Device{}, mapErr(err)
	}
	d.Platform = models.Platform(platform)
	d.Channel = models.Channel(channel)
	if len(info) > 0 {
		if err := json.Unmarshal(info, &d.Info); err != nil {
			return models.Device{}, fmt.Errorf("decode device info: %w", err)
		}
	}
	return d, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (models.Device, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.Device{}, err
	}
	return scanDevice(s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, pgID))
}

func (s *Store) GetDeviceByChannel(ctx context.Context, userID string, channel models.Channel) (models.Device, error) {
	pgID, err := parseID(userID)
	if err != nil {
		return models.Device{}, err
	}
	return scanDevice(s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND channel = $2`,
		pgID, string(channel),
	))
}

func (s *Store) FindDeviceByExternalID(ctx context.Context, appID string, channel models.Channel, externalID string) (models.Device, error) {
	pgID, err := parseID(appID)
	if err != nil {
		return models.Device{}, err
	}
	return scanDevice(s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE app_id = $1 AND channel = $2 AND external_id = $3`,
		pgID, string(channel), externalID,
	))
}

func (s *Store) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	pgID, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at`, pgID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	items := make([]models.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, mapErr(rows.Err())
}

func (s *Store) UpsertDevice(ctx context.Context, device models.Device) (models.Device, error) {
	return upsertDevice(ctx, s.db, device, false)
}

// CreateUserWithDevice inserts both rows in one transaction; a taken
// external id rolls the user insert back.
func (s *Store) CreateUserWithDevice(ctx context.Context, user models.User, device models.Device) (models.User, models.Device, error) {
	var (
		createdUser   models.User
		createdDevice models.Device
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		createdUser, err = insertUser(ctx, tx, user)
		if err != nil {
			return err
		}
		device.UserID = createdUser.ID
		device.AppID = createdUser.AppID
		createdDevice, err = upsertDevice(ctx, tx, device, true)
		return err
	})
	if err != nil {
		return models.User{}, models.Device{}, err
	}
	return createdUser, createdDevice, nil
}

func upsertDevice(ctx context.Context, q DBTX, device models.Device, insertOnly bool) (models.Device, error) {
	appID, err := parseID(device.AppID)
	if err != nil {
		return models.Device{}, err
	}
	userID, err := parseID(device.UserID)
	if err != nil {
		return models.Device{}, err
	}
	info, err := marshalJSON(device.Info)
	if err != nil {
		return models.Device{}, err
	}
	query := `
INSERT INTO devices (id, app_id, user_id, uid, platform, channel, push_token, external_id, info, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`
	if !insertOnly {
		query += `
ON CONFLICT (user_id, channel) DO UPDATE SET
    uid = EXCLUDED.uid,
    platform = EXCLUDED.platform,
    push_token = EXCLUDED.push_token,
    external_id = EXCLUDED.external_id,
    info = EXCLUDED.info,
    updated_at = EXCLUDED.updated_at`
	}
	query += `
RETURNING ` + deviceColumns
	return scanDevice(q.QueryRow(ctx, query,
		uuid.New(), appID, userID, device.UID, string(device.Platform), string(device.Channel), device.PushToken,
		nullable(device.ExternalID()), info, utcNow(),
	))
}
