package database

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// AlertStore keeps the whole alert collection in the alerts table. Every save
// replaces the table inside one transaction.
type AlertStore struct {
	db *DB
}

func (d *DB) Alerts() *AlertStore {
	return &AlertStore{db: d}
}

// Load returns the persisted collection. Rows that cannot be decoded are
// logged and skipped.
func (s *AlertStore) Load(ctx context.Context) (types.Collection, error) {
	query := `
	SELECT unique_id, owner, owner_name, asset_id, display_symbol, display_name,
		target_price, last_observed_price, state, trigger_direction, triggered_price,
		created_at, triggered_at, delivery_channel
	FROM alerts ORDER BY owner, position;`

	rows, err := s.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	c := make(types.Collection)
	for rows.Next() {
		var (
			a                                       types.Alert
			target, observed, triggeredPrice, state string
			direction, createdAt                    string
			triggeredAt                             sql.NullString
		)
		if err := rows.Scan(&a.UniqueID, &a.Owner, &a.OwnerName, &a.AssetID, &a.DisplaySymbol, &a.DisplayName,
			&target, &observed, &state, &direction, &triggeredPrice,
			&createdAt, &triggeredAt, &a.DeliveryChannel); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		if err := decodeAlert(&a, target, observed, triggeredPrice, state, direction, createdAt, triggeredAt); err != nil {
			log.Warnf("Skipping unreadable alert %s of owner %s: %v", a.UniqueID, a.Owner, err)
			continue
		}
		c[a.Owner] = append(c[a.Owner], a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read alerts")
	}
	return c, nil
}

func decodeAlert(a *types.Alert, target, observed, triggeredPrice, state, direction, createdAt string, triggeredAt sql.NullString) error {
	var err error
	if a.TargetPrice, err = decimal.NewFromString(target); err != nil {
		return errors.Wrap(err, "target_price")
	}
	if a.LastObservedPrice, err = decimal.NewFromString(observed); err != nil {
		return errors.Wrap(err, "last_observed_price")
	}
	if a.TriggeredPrice, err = decimal.NewFromString(triggeredPrice); err != nil {
		return errors.Wrap(err, "triggered_price")
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return errors.Wrap(err, "created_at")
	}

	switch types.State(state) {
	case types.StateWatching, types.StateTriggered:
		a.State = types.State(state)
	default:
		return errors.Errorf("unknown state %q", state)
	}
	a.TriggerDirection = types.Direction(direction)

	if triggeredAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, triggeredAt.String)
		if err != nil {
			return errors.Wrap(err, "triggered_at")
		}
		a.TriggeredAt = &at
	}
	return nil
}

// Save atomically replaces the persisted collection with c.
func (s *AlertStore) Save(ctx context.Context, c types.Collection) (status error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if status != nil {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts;`); err != nil {
		return errors.Wrap(err, "failed to clear alerts")
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO alerts (unique_id, owner, position, owner_name, asset_id, display_symbol, display_name,
		target_price, last_observed_price, state, trigger_direction, triggered_price,
		created_at, triggered_at, delivery_channel)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	owners := make([]string, 0, len(c))
	for owner := range c {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		for pos, a := range c[owner] {
			var triggeredAt sql.NullString
			if a.TriggeredAt != nil {
				triggeredAt = sql.NullString{String: a.TriggeredAt.UTC().Format(time.RFC3339Nano), Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				a.UniqueID, owner, pos, a.OwnerName, a.AssetID, a.DisplaySymbol, a.DisplayName,
				a.TargetPrice.String(), a.LastObservedPrice.String(), string(a.State),
				string(a.TriggerDirection), a.TriggeredPrice.String(),
				a.CreatedAt.UTC().Format(time.RFC3339Nano), triggeredAt, a.DeliveryChannel)
			if err != nil {
				return errors.Wrapf(err, "failed to insert alert %s", a.UniqueID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit alerts")
	}
	return nil
}
