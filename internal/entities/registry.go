package entities

import (
	"fmt"
	"strings"

	"github.com/mtkorhonen/helen2mqtt/internal/database"
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// Registry persists the identity of every published entity. Object ids
// are claimed once and then kept, so the Home Assistant entity id, and
// with it the recorded history, survives account renames, re-ordering
// and naming scheme changes.
type Registry struct {
	db *database.DB
}

// NewRegistry creates a registry backed by the given database
func NewRegistry(db *database.DB) *Registry {
	return &Registry{db: db}
}

// Resolve fills the identity fields of each sensor for the account at
// position index in the configuration. A sensor already on record keeps
// its stored object id; a new sensor claims the first free object id at
// or after its position. Display names always follow the current naming.
func (r *Registry) Resolve(sensors []models.Sensor, accountID string, index int, siteID string) error {
	for i := range sensors {
		s := &sensors[i]
		s.UniqueID = UniqueID(accountID, s.Type, index)
		s.Name = DisplayName(s.Type, index, siteID)

		existing, err := r.db.GetEntity(s.UniqueID)
		if err != nil {
			return err
		}
		if existing != nil {
			s.ObjectID = existing.ObjectID
		} else {
			s.ObjectID, err = r.claimObjectID(s.Type, s.UniqueID, index)
			if err != nil {
				return err
			}
		}

		err = r.db.UpsertEntity(&models.Entity{
			UniqueID:   s.UniqueID,
			AccountID:  accountID,
			SensorType: s.Type,
			ObjectID:   s.ObjectID,
			Name:       s.Name,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// claimObjectID finds the first object id for a sensor type, at or after
// the account's position, not held by another entity
func (r *Registry) claimObjectID(sensorType, uniqueID string, index int) (string, error) {
	for n := index; ; n++ {
		candidate := ObjectID(sensorType, n)
		owner, err := r.db.GetEntityByObjectID(candidate)
		if err != nil {
			return "", err
		}
		if owner == nil || owner.UniqueID == uniqueID {
			return candidate, nil
		}
	}
}

// AdoptLegacy re-keys registrations left behind by an earlier account
// identity. A row holding a legacy object id whose owner is not among
// the active accounts is reassigned to the given account, keeping the
// object id so the entity id and its history carry over. Returns the
// number of adopted entities.
func (r *Registry) AdoptLegacy(accountID string, activeAccounts []string) (int, error) {
	active := make(map[string]bool, len(activeAccounts)+1)
	active[accountID] = true
	for _, id := range activeAccounts {
		active[id] = true
	}

	adopted := 0
	for legacyID, sensorType := range LegacyEntityMappings {
		objectID := strings.TrimPrefix(legacyID, "sensor.")

		row, err := r.db.GetEntityByObjectID(objectID)
		if err != nil {
			return adopted, err
		}
		if row == nil || active[row.AccountID] {
			continue
		}

		newUID := UniqueID(accountID, sensorType, 0)
		if row.UniqueID == newUID {
			continue
		}

		if err := r.db.ReassignEntity(row.UniqueID, newUID, accountID); err != nil {
			return adopted, fmt.Errorf("adopting %s: %w", legacyID, err)
		}
		adopted++
	}

	return adopted, nil
}

// PruneOrphans deletes registrations whose account no longer exists in
// the configuration. Returns the removed entities so their discovery
// configs can be cleared.
func (r *Registry) PruneOrphans(activeAccounts []string) ([]models.Entity, error) {
	return r.prune(activeAccounts, false)
}

// PruneRemoved deletes registrations of accounts no longer configured,
// but leaves rows still holding a bare legacy object id in place: those
// are adoption candidates for the first account, not leftovers. Safe to
// run unattended; the full cleanup is PruneOrphans via 'migrate --prune'.
func (r *Registry) PruneRemoved(activeAccounts []string) ([]models.Entity, error) {
	return r.prune(activeAccounts, true)
}

func (r *Registry) prune(activeAccounts []string, keepLegacy bool) ([]models.Entity, error) {
	active := make(map[string]bool, len(activeAccounts))
	for _, id := range activeAccounts {
		active[id] = true
	}

	all, err := r.db.ListEntities()
	if err != nil {
		return nil, err
	}

	var removed []models.Entity
	for _, e := range all {
		if active[e.AccountID] {
			continue
		}
		if keepLegacy && IsLegacyObjectID(e.ObjectID) {
			continue
		}
		if err := r.db.DeleteEntity(e.UniqueID); err != nil {
			return removed, err
		}
		removed = append(removed, e)
	}

	return removed, nil
}
