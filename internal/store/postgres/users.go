package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayrohq/ayro/internal/models"
)

const userColumns = `id::text, app_id::text, uid, identified, first_name, last_name, random_name, email, photo_url,
    properties, sign_up_date, extra, latest_channel, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var (
		u      models.User
		props  []byte
		extra  []byte
		latest string
	)
	if err := row.Scan(&u.ID, &u.AppID, &u.UID, &u.Identified, &u.FirstName, &u.LastName, &u.RandomName, &u.Email, &u.PhotoURL,
		&props, &u.SignUpDate, &extra, &latest, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return models.User{}, mapErr(err)
	}
	if len(props) > 0 {
		u.Properties = unmarshalMap(props)
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &u.Extra); err != nil {
			return models.User{}, fmt.Errorf("decode user extra: %w", err)
		}
	}
	u.LatestChannel = models.Channel(latest)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.User{}, err
	}
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pgID))
}

func (s *Store) GetUserByUID(ctx context.Context, appID, uid string) (models.User, error) {
	pgID, err := parseID(appID)
	if err != nil {
		return models.User{}, err
	}
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE app_id = $1 AND uid = $2`, pgID, uid))
}

func (s *Store) FindUserBySlackChannel(ctx context.Context, slackChannelID string) (models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE extra -> 'slack_channel' ->> 'id' = $1`,
		slackChannelID,
	))
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	return insertUser(ctx, s.db, user)
}

func insertUser(ctx context.Context, q DBTX, user models.User) (models.User, error) {
	appID, err := parseID(user.AppID)
	if err != nil {
		return models.User{}, err
	}
	props, err := marshalJSON(user.Properties)
	if err != nil {
		return models.User{}, err
	}
	extra, err := marshalJSON(user.Extra)
	if err != nil {
		return models.User{}, err
	}
	now := utcNow()
	return scanUser(q.QueryRow(ctx, `
INSERT INTO users (id, app_id, uid, identified, first_name, last_name, random_name, email, photo_url,
    properties, sign_up_date, extra, latest_channel, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
RETURNING `+userColumns,
		uuid.New(), appID, user.UID, user.Identified, user.FirstName, user.LastName, user.RandomName, user.Email, user.PhotoURL,
		props, user.SignUpDate, extra, string(user.LatestChannel), now,
	))
}

// PatchUser locks the row, applies the patch in Go and writes the full
// mutable column set back inside one transaction.
func (s *Store) PatchUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.User{}, err
	}
	var updated models.User
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, pgID))
		if err != nil {
			return err
		}
		patch.Apply(&current)
		props, err := marshalJSON(current.Properties)
		if err != nil {
			return err
		}
		extra, err := marshalJSON(current.Extra)
		if err != nil {
			return err
		}
		updated, err = scanUser(tx.QueryRow(ctx, `
UPDATE users SET
    first_name = $2, last_name = $3, random_name = $4, email = $5, photo_url = $6,
    properties = $7, sign_up_date = $8, extra = $9, latest_channel = $10, updated_at = $11
WHERE id = $1
RETURNING `+userColumns,
			pgID, current.FirstName, current.LastName, current.RandomName, current.Email, current.PhotoURL,
			props, current.SignUpDate, extra, string(current.LatestChannel), utcNow(),
		))
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}
