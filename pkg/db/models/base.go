package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller did not provide one. Postgres
// carries gen_random_uuid() defaults in the migrations; the hook keeps sqlite
// and in-memory test databases consistent with that.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
