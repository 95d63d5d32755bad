package domain

// Models lists every model stored in the database, in migration order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Tweet{},
		&Follow{},
		&Like{},
	}
}
