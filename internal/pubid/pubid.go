// Package pubid implements the publisher_id stamped onto every mutating
// command: (node, actor-ish local id).
package pubid

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies the command's originator: the node it came from and a
// local id scoped to that node (e.g. the worker/actor that issued it).
type ID struct {
	Node  uuid.UUID
	Local uint64
}

func New(node uuid.UUID, local uint64) ID {
	return ID{Node: node, Local: local}
}

func (id ID) String() string {
	return fmt.Sprintf("%s#%d", id.Node, id.Local)
}

func (id ID) Equal(other ID) bool {
	return id.Node == other.Node && id.Local == other.Local
}
