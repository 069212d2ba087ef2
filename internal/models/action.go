package models

import (
	"fmt"
	"strings"
)

// ActionKind is the mutation verb of an outbox entry.
type ActionKind string

const (
	ActionCreate ActionKind = "CREATE"
	ActionUpdate ActionKind = "UPDATE"
	ActionDelete ActionKind = "DELETE"
)

// EntityType names a syncable entity.
type EntityType string

const (
	EntityProduct     EntityType = "PRODUCT"
	EntityCategory    EntityType = "CATEGORY"
	EntityTransaction EntityType = "TRANSACTION"
	EntityContact     EntityType = "CONTACT"
	EntityLedger      EntityType = "LEDGER"
	EntityFee         EntityType = "FEE"
	EntityUser        EntityType = "USER"
)

var entityCollections = map[EntityType]Collection{
	EntityProduct:     Products,
	EntityCategory:    Categories,
	EntityTransaction: Transactions,
	EntityContact:     Contacts,
	EntityLedger:      Ledgers,
	EntityFee:         Fees,
	EntityUser:        Users,
}

// Collection returns the store collection holding records of this entity type.
func (e EntityType) Collection() Collection {
	return entityCollections[e]
}

// EntityFor returns the entity type stored in collection c.
func EntityFor(c Collection) (EntityType, bool) {
	for e, coll := range entityCollections {
		if coll == c {
			return e, true
		}
	}
	return "", false
}

// Action is the closed set of mutations that can enter the outbox,
// rendered on the wire as e.g. CREATE_PRODUCT.
type Action struct {
	Kind   ActionKind
	Entity EntityType
}

func (a Action) String() string {
	return string(a.Kind) + "_" + string(a.Entity)
}

// Valid reports whether both halves of the action are known.
func (a Action) Valid() bool {
	switch a.Kind {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return false
	}
	_, ok := entityCollections[a.Entity]
	return ok
}

// ParseAction parses the wire form (CREATE_PRODUCT, DELETE_LEDGER, ...).
func ParseAction(s string) (Action, error) {
	kind, entity, ok := strings.Cut(s, "_")
	if !ok {
		return Action{}, fmt.Errorf("invalid action %q", s)
	}
	a := Action{Kind: ActionKind(kind), Entity: EntityType(entity)}
	if !a.Valid() {
		return Action{}, fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Create, Update and Delete build actions for an entity type.
func Create(e EntityType) Action { return Action{Kind: ActionCreate, Entity: e} }
func Update(e EntityType) Action { return Action{Kind: ActionUpdate, Entity: e} }
func Delete(e EntityType) Action { return Action{Kind: ActionDelete, Entity: e} }
