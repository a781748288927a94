package models

// ModelsToAutoMigrate returns the models in dependency order.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Case{}, // Must be first - documents and activity reference it
		&Document{},
		&RetiredFolio{},
		&ActivityLogEntry{},
	}
}
