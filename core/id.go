package core

import (
	"github.com/google/uuid"

	"pkt.systems/burrow/schema"
)

func newTabID() schema.TabID {
	return schema.TabID(uuid.NewString())
}
