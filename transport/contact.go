// Package transport carries contact-to-contact messages and anonymous
// broadcasts between terminals over zmq.
package transport

import (
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

const errTempUnavail = `resource temporarily unavailable`

type contactReq struct {
	data    []byte
	resChan chan error
}

// Contact is the bilateral message channel: a REP socket receives
// frames from counterparties, and one lazily created REQ sender per
// known endpoint delivers ours.
type Contact struct {
	skt       *zmq.Socket
	zmqCtx    *zmq.Context
	ownID     string
	endpoints *sync.Map // contactID -> endpoint
	senders   *sync.Map // endpoint -> chan contactReq
	onMessage func(contactID string, data []byte)
	log       log.Logger
}

func NewContact(zmqCtx *zmq.Context, ownID, bindEndpoint string, onMessage func(contactID string, data []byte), logger log.Logger) (*Contact, error) {
	skt, err := zmqCtx.NewSocket(zmq.REP)
	if err != nil {
		return nil, fmt.Errorf(`constructing contact server socket failed - %v`, err)
	}
	if err = skt.Bind(bindEndpoint); err != nil {
		return nil, fmt.Errorf(`binding contact socket to %s failed - %v`, bindEndpoint, err)
	}

	return &Contact{
		skt:       skt,
		zmqCtx:    zmqCtx,
		ownID:     ownID,
		endpoints: &sync.Map{},
		senders:   &sync.Map{},
		onMessage: onMessage,
		log:       logger,
	}, nil
}

// AddPeer registers the endpoint a counterparty listens on.
func (c *Contact) AddPeer(contactID, endpoint string) {
	c.endpoints.Store(contactID, endpoint)
}

func (c *Contact) RemovePeer(contactID string) {
	c.endpoints.Delete(contactID)
}

// SendContact delivers a serialized contact message to the registered
// endpoint of the counterparty.
func (c *Contact) SendContact(contactID string, data []byte) error {
	val, ok := c.endpoints.Load(contactID)
	if !ok {
		return fmt.Errorf(`no endpoint known for contact %s`, contactID)
	}
	endpoint := val.(string)

	inChan := c.sender(endpoint)
	resChan := make(chan error)
	inChan <- contactReq{data: data, resChan: resChan}
	if err := <-resChan; err != nil {
		return fmt.Errorf(`send error - %v`, err)
	}

	return nil
}

func (c *Contact) sender(endpoint string) chan contactReq {
	if val, ok := c.senders.Load(endpoint); ok {
		return val.(chan contactReq)
	}

	inChan := make(chan contactReq)
	c.senders.Store(endpoint, inChan)
	go c.initSender(endpoint, inChan)
	return inChan
}

func (c *Contact) initSender(endpoint string, inChan chan contactReq) {
	skt, err := c.zmqCtx.NewSocket(zmq.REQ)
	if err != nil {
		c.log.Fatal(fmt.Sprintf(`creating new socket for endpoint %s failed - %v`, endpoint, err))
	}

	if err = skt.Connect(endpoint); err != nil {
		c.log.Fatal(fmt.Sprintf(`connecting to zmq socket (%s) failed - %v`, endpoint, err))
	}

	for req := range inChan {
		if _, err = skt.SendMessage([][]byte{[]byte(c.ownID), req.data}); err != nil {
			req.resChan <- fmt.Errorf(`sending zmq message failed - %v`, err)
			continue
		}

	receive:
		ack, err := skt.RecvMessage(0)
		if err != nil {
			if err.Error() == errTempUnavail {
				goto receive
			}
			req.resChan <- fmt.Errorf(`receiving zmq ack failed - %v`, err)
			continue
		}

		if len(ack) == 0 || ack[0] != `ok` {
			req.resChan <- fmt.Errorf(`received an error ack`)
			continue
		}

		req.resChan <- nil
	}
}

// Start serves inbound contact frames. Each frame carries the sender's
// contact id followed by the message payload. Blocks; run in its own
// goroutine.
func (c *Contact) Start() {
	for {
		frames, err := c.skt.RecvMessageBytes(0)
		if err != nil {
			if err.Error() != errTempUnavail {
				c.log.Error(fmt.Sprintf(`receiving zmq message failed - %v`, err))
			}
			c.sendAck(false)
			continue
		}

		if len(frames) != 2 {
			c.log.Error(`received an empty/invalid contact message`)
			c.sendAck(false)
			continue
		}

		c.onMessage(string(frames[0]), frames[1])
		c.sendAck(true)
	}
}

func (c *Contact) sendAck(success bool) {
	msg := `ok`
	if !success {
		msg = `failed`
	}

	if _, err := c.skt.Send(msg, 0); err != nil {
		c.log.Error(fmt.Sprintf(`sending zmq ack failed - %v`, err))
	}
}
