// Package abi exposes the single process-wide entry points a host links
// against: Initialize and RecvMessage. It owns the one mutex that
// serializes every access to the LeiA context and the attestation
// subsystem, generalizing the teacher's SessionManager.lock up from a
// session pool to the whole enclave context (§5).
package abi

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vulcan-project/leia/attest"
	"github.com/vulcan-project/leia/bus"
	"github.com/vulcan-project/leia/leia"
	"github.com/vulcan-project/leia/spongent"
	"github.com/vulcan-project/leia/store"
)

// Controller is the process-wide, single-mutex-protected enclave context.
type Controller struct {
	mu sync.Mutex

	oracle spongent.Oracle
	sender bus.Sender
	log    zerolog.Logger

	ctx         *leia.Context
	distributor *attest.Distributor
	responder   *attest.Responder

	participations []attest.Participation
	connIDs        []uint16
	rand           io.Reader
}

// NewController wires a Controller from its host-provided collaborators and
// deployment configuration; call Initialize before RecvMessage.
func NewController(sender bus.Sender, rnd io.Reader, log zerolog.Logger, aecID uint16, aecKey spongent.Key, connIDs []uint16, participations []attest.Participation) *Controller {
	oracle := spongent.NewAESOracle()
	ctx := leia.NewContext(oracle, sender, store.NewMap(), log)
	ctx.SetAEC(aecID, aecKey)

	c := &Controller{
		oracle:         oracle,
		sender:         sender,
		log:            log.With().Str("component", "abi").Logger(),
		ctx:            ctx,
		distributor:    attest.NewDistributor(oracle, sender, log),
		participations: participations,
		connIDs:        connIDs,
		rand:           rnd,
	}
	c.responder = attest.NewResponder(c.distributor, log)
	return c
}

// Initialize installs connection keys, runs the attestation bootstrap and
// derives every session key. Returns 0 on success, matching the cgo ABI's
// integer status convention; non-nil errors are also returned for Go
// callers and are fatal to the enclave (§7).
func (c *Controller) Initialize() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	connKeys := make(attest.ConnectionKeys, len(c.connIDs))
	for _, id := range c.connIDs {
		key, err := c.randomKey()
		if err != nil {
			return 1, errors.Wrap(err, "abi: generate connection key")
		}
		connKeys[id] = key
		if err := c.ctx.AddConnection(id, key); err != nil {
			return 1, errors.Wrap(err, "abi: register connection")
		}
	}

	if err := c.distributor.Bootstrap(c.participations, connKeys); err != nil {
		return 1, errors.Wrap(err, "abi: attestation bootstrap")
	}

	if err := c.ctx.Init(); err != nil {
		return 1, errors.Wrap(err, "abi: derive session keys")
	}

	c.log.Info().Int("connections", len(c.connIDs)).Msg("enclave initialized")
	return 0, nil
}

func (c *Controller) randomKey() (spongent.Key, error) {
	var key spongent.Key
	if _, err := io.ReadFull(c.rand, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// RecvMessage dispatches one inbound CAN frame to the attestation responder
// or the LeiA context, depending on its id. Returns 0 on success; fatal
// conditions are also returned as an error.
func (c *Controller) RecvMessage(eid uint32, payload []byte) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if eid == attest.AttestRecvID {
		c.responder.Recv(payload)
		return 0, nil
	}

	ev, err := c.ctx.AuthRecv(eid, payload)
	if err != nil {
		c.log.Error().Err(err).Msg("fatal condition processing inbound frame")
		return 1, err
	}

	c.log.Debug().Uint16("id", ev.ID).Str("event", ev.Kind.String()).Msg("frame dispatched")
	return 0, nil
}

// AuthSend sends an authenticated application message on a data connection,
// for hosts/tests driving the core directly rather than through the cgo ABI.
func (c *Controller) AuthSend(id uint16, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx.AuthSend(id, msg)
}
