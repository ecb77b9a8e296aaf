// Package models holds the GORM entities of the ride exchange.
package models

// All returns every model in migration order.
func All() []any {
	return []any{
		&Permission{},
		&Role{},
		&Driver{},
		&Groupe{},
		&GroupeMembre{},
		&GroupeInvitation{},
		&Ride{},
		&Transaction{},
		&FactureSequence{},
		&Facture{},
		&Conversation{},
		&Message{},
		&Avis{},
		&Document{},
		&RideTracking{},
		&ActivityLog{},
	}
}
