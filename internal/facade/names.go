package facade

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// DefaultNameTTL is how long a resolved name stays cached.
const DefaultNameTTL = 10 * time.Minute

// NamesState counts resolutions and keeps the latest one.
type NamesState struct {
	Resolved uint64                  `json:"resolved"`
	Unknown  uint64                  `json:"unknown"`
	Last     *protocol.CharacterName `json:"last,omitempty"`
}

// Names resolves character GUIDs to names. Answers are cached for a TTL
// so repeated lookups stay off the wire.
type Names struct {
	*subsystem.Facade[NamesState]

	cache     *gocache.Cache
	responses *subsystem.Feed[protocol.CharacterName]
}

// NewNames creates the name lookup facade. ttl <= 0 uses DefaultNameTTL.
func NewNames(r *router.Router, ttl time.Duration, opts subsystem.Options) *Names {
	if ttl <= 0 {
		ttl = DefaultNameTTL
	}
	n := &Names{
		Facade: subsystem.New("names", r, NamesState{}, opts),
		cache:  gocache.New(ttl, 2*ttl),
	}
	n.responses = subsystem.Handle(n.Facade, protocol.SmsgNameQueryResponse, protocol.ParseNameQueryResponse,
		func(s *NamesState, c *protocol.CharacterName) {
			if !c.Known {
				s.Unknown++
				return
			}
			name := *c
			n.cache.SetDefault(cacheKey(c.GUID), name)
			s.Resolved++
			s.Last = &name
		})
	n.OnConnectionLost(n.cache.Flush)
	return n
}

func cacheKey(guid protocol.GUID) string {
	return guid.String()
}

// Responses returns the feed of name query responses.
func (n *Names) Responses() (<-chan protocol.CharacterName, func()) {
	return n.responses.Subscribe()
}

// Lookup returns a cached name without touching the wire.
func (n *Names) Lookup(guid protocol.GUID) (protocol.CharacterName, bool) {
	v, ok := n.cache.Get(cacheKey(guid))
	if !ok {
		return protocol.CharacterName{}, false
	}
	return v.(protocol.CharacterName), true
}

// Cached returns the number of cached names.
func (n *Names) Cached() int { return n.cache.ItemCount() }

// Query asks the server for guid's name.
func (n *Names) Query(ctx context.Context, guid protocol.GUID) error {
	return n.Send(ctx, protocol.CmsgNameQuery, protocol.BuildNameQuery(guid))
}

// Resolve returns guid's name from the cache, or queries the server and
// waits for the answer. ok is false when the server does not know guid or
// did not answer in time.
func (n *Names) Resolve(ctx context.Context, guid protocol.GUID) (name string, ok bool, err error) {
	if c, hit := n.Lookup(guid); hit {
		return c.Name, true, nil
	}

	exp := subsystem.Expect(n.Facade, protocol.SmsgNameQueryResponse, protocol.ParseNameQueryResponse, func(c protocol.CharacterName) bool {
		return c.GUID == guid
	})
	defer exp.Release()

	if err := n.Query(ctx, guid); err != nil {
		return "", false, err
	}
	c, outcome, err := correlate.Await(ctx, n.Flow("resolve"), exp)
	if err != nil || outcome != correlate.OutcomeConfirmed || !c.Known {
		return "", false, err
	}
	return c.Name, true, nil
}
