package state

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	orderPrefix     = "escrow/order/"
	indexCountKey   = "escrow/index/count"
	indexEntry      = "escrow/index/"
	eventCountKey   = "escrow/events/count"
	eventEntry      = "escrow/events/"
	tokenStateKey   = "escrow/token/snapshot"
	registryMetaKey = "escrow/registry/meta"
)

func orderKey(id [32]byte) []byte {
	return []byte(orderPrefix + hex.EncodeToString(id[:]))
}

func indexKey(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return []byte(indexEntry + hex.EncodeToString(buf[:]))
}

func eventKey(sequence uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sequence)
	return []byte(eventEntry + hex.EncodeToString(buf[:]))
}
