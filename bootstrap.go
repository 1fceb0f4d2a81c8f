package main

import (
	"fmt"
	"os"
	"path/filepath"

	zmq "github.com/pebbe/zmq4"
	"github.com/otcdesk/otcdesk/bridge"
	"github.com/otcdesk/otcdesk/cli"
	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/container"
	"github.com/otcdesk/otcdesk/engine"
	"github.com/otcdesk/otcdesk/journal"
	"github.com/otcdesk/otcdesk/log"
	"github.com/otcdesk/otcdesk/mock"
	"github.com/otcdesk/otcdesk/transport"
)

type terminal struct {
	c      *container.Container
	eng    *engine.Engine
	ctc    *transport.Contact
	pub    *transport.Public
	gw     *bridge.Gateway
	wallet *mock.Wallet
	jrn    *journal.Journal
}

func initTerminal(cfg *domain.Config) (*terminal, error) {
	logger := log.NewLogger(cfg.Verbose, cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		return nil, fmt.Errorf(`creating journal directory failed - %v`, err)
	}
	db, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf(`opening journal failed - %v`, err)
	}
	if err = journal.RunMigrationsWithDB(db, cfg.JournalMigrations); err != nil {
		return nil, fmt.Errorf(`migrating journal failed - %v`, err)
	}
	jrn := journal.New(db)

	wallet := mock.NewWallet(cfg.Name, cfg.Name+`-wallet`)
	outChan := make(chan string, 16)

	c := &container.Container{
		Cfg:      cfg,
		Log:      logger,
		Wallets:  wallet,
		Signer:   mock.NewSigner(),
		Builder:  mock.NewBuilder(),
		Verifier: mock.NewVerifier(),
		Events:   cli.NewSink(logger, outChan),
		Journal:  jrn,
		OutChan:  outChan,
	}

	zmqCtx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf(`constructing zmq context failed - %v`, err)
	}

	// Transports deliver frames through closures so the engine can be
	// wired after the sockets exist.
	var eng *engine.Engine

	ctc, err := transport.NewContact(zmqCtx, cfg.ContactID, cfg.ContactEndpoint, func(contactID string, data []byte) {
		eng.ProcessContactMessage(contactID, data)
	}, logger)
	if err != nil {
		return nil, err
	}

	pub, err := transport.NewPublic(zmqCtx, cfg.ContactID, cfg.PublicPubEndpoint, cfg.PublicSubs, func(contactID string, data []byte) {
		eng.ProcessPublicMessage(contactID, data)
	}, logger)
	if err != nil {
		return nil, err
	}

	gw, err := bridge.NewGateway(zmqCtx, cfg.BridgeReqEndpoint, cfg.BridgeSubEndpoint, func(data []byte) {
		eng.ProcessBridgeMessage(data)
	}, logger)
	if err != nil {
		return nil, err
	}

	c.Contacts = ctc
	c.Broadcast = pub
	c.Bridge = gw

	eng = engine.New(c)

	return &terminal{c: c, eng: eng, ctc: ctc, pub: pub, gw: gw, wallet: wallet, jrn: jrn}, nil
}

func (t *terminal) shutdown() {
	t.gw.Close()
	if err := t.jrn.Close(); err != nil {
		t.c.Log.Error(fmt.Sprintf(`closing journal failed - %v`, err))
	}
}
