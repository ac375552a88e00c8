package engine

import (
	"time"

	"github.com/smurn/renat/internal/list"
)

// Record is one stored value: an (id, version, token, timestamp, data)
// tuple. It is created by Put and destroyed only by eviction.
//
// A Record belongs to two intrusive lists at once — its id's version
// chain and the engine's global eviction list — so it embeds two
// independent link-field pairs, one per list identity.
type Record struct {
	ID        string
	Version   int64
	Token     string
	LastTouch time.Time
	Data      []byte

	versionLink list.Node[*Record]
	evictLink   list.Node[*Record]
}

func versionLinkOf(r *Record) *list.Node[*Record] { return &r.versionLink }
func evictLinkOf(r *Record) *list.Node[*Record]   { return &r.evictLink }

type recordKey struct {
	id      string
	version int64
}

type idepoKey struct {
	id    string
	token string
}
