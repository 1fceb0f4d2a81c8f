package transport

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

// Public is the anonymous broadcast channel: a PUB socket fans
// requests out to every listening terminal and a SUB socket consumes
// the boards of others. Frames are zstd-compacted on the wire.
type Public struct {
	pubChan   chan publishReq
	sub       *zmq.Socket
	ownID     string
	zEncodr   *zstd.Encoder
	zDecodr   *zstd.Decoder
	onMessage func(contactID string, data []byte)
	log       log.Logger
}

type publishReq struct {
	data    []byte
	resChan chan error
}

func NewPublic(zmqCtx *zmq.Context, ownID, pubEndpoint string, subEndpoints []string,
	onMessage func(contactID string, data []byte), logger log.Logger) (*Public, error) {

	pub, err := zmqCtx.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf(`constructing public publisher socket failed - %v`, err)
	}
	if err = pub.Bind(pubEndpoint); err != nil {
		return nil, fmt.Errorf(`binding public socket to %s failed - %v`, pubEndpoint, err)
	}

	sub, err := zmqCtx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf(`constructing public subscriber socket failed - %v`, err)
	}
	for _, endpoint := range subEndpoints {
		if err = sub.Connect(endpoint); err != nil {
			return nil, fmt.Errorf(`connecting to public board (%s) failed - %v`, endpoint, err)
		}
	}
	if err = sub.SetSubscribe(``); err != nil {
		return nil, fmt.Errorf(`subscribing to public boards failed - %v`, err)
	}

	zstdEncoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf(`creating zstd encoder failed - %v`, err)
	}
	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf(`creating zstd decoder failed - %v`, err)
	}

	p := &Public{
		pubChan:   make(chan publishReq),
		sub:       sub,
		ownID:     ownID,
		zEncodr:   zstdEncoder,
		zDecodr:   zstdDecoder,
		onMessage: onMessage,
		log:       logger,
	}

	go p.publisher(pub)
	return p, nil
}

// SendPublic compacts and broadcasts a serialized public message.
func (p *Public) SendPublic(data []byte) error {
	resChan := make(chan error)
	p.pubChan <- publishReq{data: data, resChan: resChan}
	return <-resChan
}

func (p *Public) publisher(skt *zmq.Socket) {
	for req := range p.pubChan {
		compacted := p.zEncodr.EncodeAll(req.data, nil)
		if _, err := skt.SendMessage([][]byte{[]byte(p.ownID), compacted}); err != nil {
			req.resChan <- fmt.Errorf(`publishing broadcast failed - %v`, err)
			continue
		}
		req.resChan <- nil
	}
}

// Listen consumes broadcast frames from subscribed boards. Blocks; run
// in its own goroutine.
func (p *Public) Listen() {
	for {
		frames, err := p.sub.RecvMessageBytes(0)
		if err != nil {
			if err.Error() != errTempUnavail {
				p.log.Error(fmt.Sprintf(`receiving broadcast failed - %v`, err))
			}
			continue
		}

		if len(frames) != 2 {
			p.log.Error(`received an empty/invalid broadcast`)
			continue
		}

		data, err := p.zDecodr.DecodeAll(frames[1], nil)
		if err != nil {
			p.log.Error(fmt.Sprintf(`decompacting broadcast failed - %v`, err))
			continue
		}

		p.onMessage(string(frames[0]), data)
	}
}
