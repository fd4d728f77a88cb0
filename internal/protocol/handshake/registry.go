package handshake

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/dispatch"
	"github.com/danmuck/ucan/internal/protocol/frame"
)

// Role is a node's part in the handshake.
type Role int

const (
	RoleNone Role = iota
	RoleMaster
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleClient:
		return "client"
	case RoleNone:
		return "none"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "master":
		return RoleMaster, nil
	case "client", "listener":
		return RoleClient, nil
	case "", "none":
		return RoleNone, nil
	default:
		return RoleNone, fmt.Errorf("%w: unknown role %q", protocol.ErrInvalidConfiguration, raw)
	}
}

// Status is a client's liveness as last evaluated.
type Status int32

const (
	StatusWaiting Status = iota
	StatusActive
	StatusTimeout
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusTimeout:
		return "timeout"
	case StatusLost:
		return "lost"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NodeInfo is the declared handshake identity of a node. MasterID is read only
// for RoleClient, Clients only for RoleMaster.
type NodeInfo struct {
	Role     Role
	SelfID   uint32
	MasterID uint32
	Clients  []uint32
}

// Client is the master's record of one client.
type Client struct {
	id           uint32
	lastResponse atomic.Uint32
	responded    atomic.Bool
	status       atomic.Int32
}

func (c *Client) ID() uint32 {
	return c.id
}

func (c *Client) Status() Status {
	return Status(c.status.Load())
}

// LastResponse reports the tick of the latest response, false if none arrived yet.
func (c *Client) LastResponse() (Tick, bool) {
	if !c.responded.Load() {
		return 0, false
	}
	return Tick(c.lastResponse.Load()), true
}

func (c *Client) recordResponse(now Tick) {
	// tick before flag: a reader that sees the flag sees the tick
	c.lastResponse.Store(uint32(now))
	c.responded.Store(true)
}

// ClientState is a point-in-time copy of a Client.
type ClientState struct {
	ID           uint32 `json:"id"`
	Status       Status `json:"status"`
	LastResponse Tick   `json:"last_response"`
	Responded    bool   `json:"responded"`
}

// Registry holds a validated NodeInfo with clients sorted by id.
type Registry struct {
	role     Role
	selfID   uint32
	masterID uint32
	clients  []*Client

	lastSent atomic.Uint32
	sent     atomic.Bool
}

// NewRegistry validates info. A master needs at least one client; client ids must
// be unique and distinct from the master's own id.
func NewRegistry(info NodeInfo) (*Registry, error) {
	if err := checkStdID("self id", info.SelfID); err != nil {
		return nil, err
	}
	r := &Registry{role: info.Role, selfID: info.SelfID}

	switch info.Role {
	case RoleNone:
	case RoleClient:
		if err := checkStdID("master id", info.MasterID); err != nil {
			return nil, err
		}
		if info.MasterID == info.SelfID {
			return nil, fmt.Errorf("%w: client id 0x%03X equals its master id", protocol.ErrDuplicateID, info.SelfID)
		}
		r.masterID = info.MasterID
	case RoleMaster:
		if len(info.Clients) == 0 {
			return nil, fmt.Errorf("%w: master requires a client list", protocol.ErrInvalidConfiguration)
		}
		for _, id := range info.Clients {
			if err := checkStdID("client id", id); err != nil {
				return nil, err
			}
			if id == info.SelfID {
				return nil, fmt.Errorf("%w: client 0x%03X equals the master id", protocol.ErrDuplicateID, id)
			}
		}
		if err := dispatch.CheckDisjoint(info.Clients); err != nil {
			return nil, err
		}
		r.clients = make([]*Client, len(info.Clients))
		for i, id := range info.Clients {
			r.clients[i] = &Client{id: id}
		}
		sort.Slice(r.clients, func(i, j int) bool {
			return r.clients[i].id < r.clients[j].id
		})
	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrInvalidConfiguration, info.Role)
	}
	return r, nil
}

func checkStdID(what string, id uint32) error {
	if id > frame.MaxStdID {
		return fmt.Errorf("%w: %s 0x%X outside standard range", protocol.ErrInvalidConfiguration, what, id)
	}
	return nil
}

func (r *Registry) Role() Role       { return r.role }
func (r *Registry) SelfID() uint32   { return r.selfID }
func (r *Registry) MasterID() uint32 { return r.masterID }

// Lookup binary-searches the client list.
func (r *Registry) Lookup(id uint32) (*Client, bool) {
	i := sort.Search(len(r.clients), func(i int) bool {
		return r.clients[i].id >= id
	})
	if i < len(r.clients) && r.clients[i].id == id {
		return r.clients[i], true
	}
	return nil, false
}

// Status reports one client's last evaluated status.
func (r *Registry) Status(id uint32) (Status, bool) {
	c, ok := r.Lookup(id)
	if !ok {
		return StatusWaiting, false
	}
	return c.Status(), true
}

// Clients returns every client in id order.
func (r *Registry) Clients() []ClientState {
	out := make([]ClientState, len(r.clients))
	for i, c := range r.clients {
		last, ok := c.LastResponse()
		out[i] = ClientState{ID: c.id, Status: c.Status(), LastResponse: last, Responded: ok}
	}
	return out
}

// LastSent reports the tick of this node's latest ping (master) or pong (client).
func (r *Registry) LastSent() (Tick, bool) {
	if !r.sent.Load() {
		return 0, false
	}
	return Tick(r.lastSent.Load()), true
}

func (r *Registry) recordSent(now Tick) {
	r.lastSent.Store(uint32(now))
	r.sent.Store(true)
}

// HandshakeIDs lists every id that carries handshake traffic for this node.
// None of them may be claimed by an application frame.
func (r *Registry) HandshakeIDs() []uint32 {
	switch r.role {
	case RoleMaster:
		ids := []uint32{r.selfID}
		for _, c := range r.clients {
			ids = append(ids, c.id)
		}
		return ids
	case RoleClient:
		return []uint32{r.selfID, r.masterID}
	default:
		return nil
	}
}
