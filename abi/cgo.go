//go:build cgo

package abi

/*
#include <stdint.h>
*/
import "C"

import (
	"crypto/rand"
	"os"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/vulcan-project/leia/internal/config"
)

// global is the single Controller instance a linked C host drives through
// the exported initialize/recv_message symbols. The C ABI has no notion of
// an instance handle, so exactly one enclave context exists per process,
// matching the spec's single-context shape (§5).
var global *Controller

// LEIA_CONFIG_PATH names the YAML deployment document loaded by initialize.
const configPathEnv = "LEIA_CONFIG_PATH"

//export initialize
func initialize() C.uint32_t {
	path := os.Getenv(configPathEnv)
	if path == "" {
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		return 1
	}

	participations, err := cfg.Participations()
	if err != nil {
		return 1
	}

	connIDs := make([]uint16, 0, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		connIDs = append(connIDs, conn.ID)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		log = log.Level(level)
	}

	var aecKey [16]byte
	if _, err := rand.Read(aecKey[:]); err != nil {
		return 1
	}

	global = NewController(cOSBus{}, rand.Reader, log, cfg.AECID, aecKey, connIDs, participations)

	status, err := global.Initialize()
	if err != nil {
		return C.uint32_t(status)
	}
	return 0
}

//export recv_message
func recv_message(eid C.uint32_t, dlen C.uint32_t, data *C.uint8_t) C.uint16_t {
	if global == nil {
		return 1
	}

	payload := C.GoBytes(unsafe.Pointer(data), C.int(dlen))
	status, err := global.RecvMessage(uint32(eid), payload)
	if err != nil {
		return 1
	}
	return C.uint16_t(status)
}

// cOSBus is a placeholder bus.Sender for the cgo entry point; a real
// deployment replaces this with a binding to the host's CAN driver.
type cOSBus struct{}

func (cOSBus) Send(eid uint32, payload []byte) {}
