// Package user reads the platform-maintained user snapshots this subsystem
// needs: identity, group membership and notification preferences. The rows
// are owned by the host platform; this repository only reads them.
package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/house-cat/echo-notifications/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// Repository loads user snapshots.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a user repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// GetUser loads one user by local id.
func (r *Repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	return r.get(ctx, "user_id", id)
}

// GetUserByGlobalID loads one user by the central identity id, as presented
// by other sites during remote aggregation.
func (r *Repository) GetUserByGlobalID(ctx context.Context, globalID int64) (model.User, error) {
	return r.get(ctx, "user_global_id", globalID)
}

func (r *Repository) get(ctx context.Context, column string, id int64) (model.User, error) {
	query := fmt.Sprintf(`
		SELECT user_id, user_name, user_global_id, user_groups, user_options
		FROM echo_user
		WHERE %s = $1;
    `, column)

	var (
		u          model.User
		globalID   sql.NullInt64
		rawOptions []byte
	)
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &globalID, pq.Array(&u.Groups), &rawOptions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}

		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	if globalID.Valid {
		u.GlobalID = globalID.Int64
	}
	if len(rawOptions) > 0 {
		if err := json.Unmarshal(rawOptions, &u.Options); err != nil {
			return model.User{}, fmt.Errorf("failed to decode user options: %w", err)
		}
	}

	return u, nil
}
