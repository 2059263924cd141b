package pinledger

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/patrickmn/go-cache"
)

// Draft holds a fetched record between the two steps of an update. The
// exported fields pre-fill the edit form; pin is the credential that resolved
// the record and is required again on confirm.
type Draft struct {
	ID     snowflake.ID `json:"draft_id"`
	AcctNo string       `json:"acc_No"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	PIN    string       `json:"pin"`

	pin int
}

// draftBook keeps open drafts until they are confirmed, abandoned or expire.
type draftBook struct {
	node  *snowflake.Node
	store *cache.Cache
}

func newDraftBook(node *snowflake.Node, ttl time.Duration) *draftBook {
	return &draftBook{
		node:  node,
		store: cache.New(ttl, 2*ttl),
	}
}

func (b *draftBook) open(acct Account) *Draft {
	d := &Draft{
		ID:     b.node.Generate(),
		AcctNo: acct.AcctNo,
		Name:   acct.Name,
		Email:  acct.Email,
		PIN:    formatPIN(acct.PIN),
		pin:    acct.PIN,
	}
	b.store.SetDefault(d.ID.String(), d)
	return d
}

func (b *draftBook) get(id snowflake.ID) (*Draft, bool) {
	v, ok := b.store.Get(id.String())
	if !ok {
		return nil, false
	}
	d, ok := v.(*Draft)
	return d, ok
}

func (b *draftBook) discard(id snowflake.ID) {
	b.store.Delete(id.String())
}
