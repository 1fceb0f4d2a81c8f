package main

import (
	"context"

	"github.com/otcdesk/otcdesk/cli"
	"github.com/otcdesk/otcdesk/config"
	"github.com/tryfix/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	cli.ParseArgs(cfg)

	t, err := initTerminal(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go t.eng.Run(ctx)
	go t.ctc.Start()
	go t.pub.Listen()
	go t.gw.Listen()
	defer t.shutdown()

	cli.Init(cfg, t.eng, t.ctc, t.wallet, t.jrn, t.c.OutChan)
}
