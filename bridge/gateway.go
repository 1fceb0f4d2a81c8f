// Package bridge translates engine events to and from the settlement
// coordination service's message protocol over zmq.
package bridge

import (
	"fmt"

	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

const errTempUnavail = `resource temporarily unavailable`

// Gateway owns one REQ socket for outbound requests and one SUB socket
// for asynchronous state pushes. Outbound sends are serialized through
// a channel since zmq sockets are not safe for concurrent use.
type Gateway struct {
	reqChan   chan outbound
	sub       *zmq.Socket
	onMessage func(data []byte)
	log       log.Logger
}

type outbound struct {
	data    []byte
	resChan chan error
}

func NewGateway(zmqCtx *zmq.Context, reqEndpoint, subEndpoint string, onMessage func(data []byte), logger log.Logger) (*Gateway, error) {
	req, err := zmqCtx.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf(`constructing bridge request socket failed - %v`, err)
	}
	if err = req.Connect(reqEndpoint); err != nil {
		return nil, fmt.Errorf(`connecting to bridge (%s) failed - %v`, reqEndpoint, err)
	}

	sub, err := zmqCtx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf(`constructing bridge subscriber socket failed - %v`, err)
	}
	if err = sub.Connect(subEndpoint); err != nil {
		return nil, fmt.Errorf(`connecting to bridge updates (%s) failed - %v`, subEndpoint, err)
	}
	if err = sub.SetSubscribe(``); err != nil {
		return nil, fmt.Errorf(`subscribing to bridge updates failed - %v`, err)
	}

	g := &Gateway{
		reqChan:   make(chan outbound),
		sub:       sub,
		onMessage: onMessage,
		log:       logger,
	}

	go g.sender(req)
	return g, nil
}

// Send delivers a serialized bridge request and waits for the
// transport-level acknowledgement.
func (g *Gateway) Send(data []byte) error {
	resChan := make(chan error)
	g.reqChan <- outbound{data: data, resChan: resChan}
	if err := <-resChan; err != nil {
		return fmt.Errorf(`bridge send error - %v`, err)
	}
	return nil
}

func (g *Gateway) sender(skt *zmq.Socket) {
	for out := range g.reqChan {
		if _, err := skt.SendBytes(out.data, 0); err != nil {
			out.resChan <- fmt.Errorf(`sending zmq message to bridge failed - %v`, err)
			continue
		}

	receive:
		ack, err := skt.RecvMessage(0)
		if err != nil {
			if err.Error() == errTempUnavail {
				goto receive
			}
			out.resChan <- fmt.Errorf(`receiving bridge ack failed - %v`, err)
			continue
		}

		if len(ack) == 0 || ack[0] != `ok` {
			out.resChan <- fmt.Errorf(`bridge rejected the request`)
			continue
		}

		out.resChan <- nil
	}
}

// Listen consumes bridge state pushes and hands each frame to the
// engine. Blocks; run in its own goroutine.
func (g *Gateway) Listen() {
	for {
		frames, err := g.sub.RecvMessageBytes(0)
		if err != nil {
			if err.Error() != errTempUnavail {
				g.log.Error(fmt.Sprintf(`receiving bridge update failed - %v`, err))
			}
			continue
		}

		if len(frames) == 0 {
			g.log.Error(`received an empty bridge update`)
			continue
		}

		g.onMessage(frames[len(frames)-1])
	}
}

func (g *Gateway) Close() {
	close(g.reqChan)
}
