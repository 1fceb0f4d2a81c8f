package cli

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/engine"
	"github.com/otcdesk/otcdesk/journal"
	"github.com/otcdesk/otcdesk/mock"
	"github.com/otcdesk/otcdesk/transport"
)

type runner struct {
	cfg     *domain.Config
	reader  *bufio.Reader
	eng     *engine.Engine
	ctc     *transport.Contact
	wallet  *mock.Wallet
	jrn     *journal.Journal
	recChan chan string
	disCmds uint64 // flag to identify whether output cursor is on basic commands or not

	authAddr string
	recvAddr string
}

// ParseArgs applies command-line overrides on top of the loaded config.
func ParseArgs(cfg *domain.Config) {
	name := flag.String(`label`, ``, `terminal's name`)
	port := flag.Int(`port`, 0, `terminal's port`)
	subs := flag.String(`subs`, ``, `comma-separated public endpoints of other terminals`)
	flag.Parse()

	if *name != `` {
		cfg.Name = *name
		cfg.ContactID = *name
	}
	if *port != 0 {
		cfg.Port = *port
		cfg.ContactEndpoint = `tcp://127.0.0.1:` + strconv.Itoa(*port)
		cfg.PublicPubEndpoint = `tcp://127.0.0.1:` + strconv.Itoa(*port+1)
	}
	if *subs != `` {
		cfg.PublicSubs = strings.Split(*subs, `,`)
	}
}

func Init(cfg *domain.Config, eng *engine.Engine, ctc *transport.Contact, w *mock.Wallet, jrn *journal.Journal, recChan chan string) {
	fmt.Printf("-> Terminal initialized with following attributes: \n\t- Name: %s\n\t- Contact endpoint: %s\n\t- Public endpoint: %s\n",
		cfg.Name, cfg.ContactEndpoint, cfg.PublicPubEndpoint)

	r := runner{
		cfg:      cfg,
		reader:   bufio.NewReader(os.Stdin),
		eng:      eng,
		ctc:      ctc,
		wallet:   w,
		jrn:      jrn,
		recChan:  recChan,
		authAddr: w.NewAddress(`auth`),
		recvAddr: w.NewAddress(`recv`),
	}
	go r.listen()
	r.basicCommands()
}

func (r *runner) basicCommands() {
basicCmds:
	fmt.Printf("\n-> Enter the corresponding number of a command to proceed;\n\t[1] Connect a contact\n\t[2] Send an offer\n\t[3] Counter an offer\n\t[4] Accept an offer\n\t[5] Pull or reject\n\t[6] Broadcast a quote request\n\t[7] Respond to a quote request\n\t[8] List peers\n\t[9] Deal history\n\t[10] Exit\n   Command: ")
	atomic.AddUint64(&r.disCmds, 1)

	cmd, err := r.reader.ReadString('\n')
	if err != nil {
		fmt.Println("   Error: reading command number failed, please try again")
		goto basicCmds
	}

	switch strings.TrimSpace(cmd) {
	case "1":
		r.connectContact()
	case "2":
		r.sendOffer()
	case "3":
		r.updateOffer()
	case "4":
		r.acceptOffer()
	case "5":
		r.pullOrReject()
	case "6":
		r.sendQuoteRequest()
	case "7":
		r.sendQuoteResponse()
	case "8":
		r.listPeers()
	case "9":
		r.dealHistory()
	case "10":
		log.Fatalln(`program exited`)
	default:
		if r.disCmds > 0 {
			fmt.Println("   Error: invalid command number, please try again")
			goto basicCmds
		}
	}

	atomic.StoreUint64(&r.disCmds, 0)
	r.basicCommands()
}

func (r *runner) connectContact() {
	name := r.readLine(`Contact name`)
	endpoint := r.readLine(`Contact endpoint`)

	r.ctc.AddPeer(name, endpoint)
	r.eng.ContactConnected(name)
	fmt.Printf("-> Contact saved {id: %s, endpoint: %s}\n", name, endpoint)
}

func (r *runner) sendOffer() {
	contactID, typ := r.readPeer()
	offer := r.readOffer()

	if err := r.eng.SendOffer(contactID, typ, offer); err != nil {
		fmt.Printf("   Error: sending offer failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Offer sent to %s\n", contactID)
}

func (r *runner) updateOffer() {
	contactID, typ := r.readPeer()
	offer := r.readOffer()

	if err := r.eng.UpdateOffer(contactID, typ, offer); err != nil {
		fmt.Printf("   Error: updating offer failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Counter-offer sent to %s\n", contactID)
}

func (r *runner) acceptOffer() {
	contactID, typ := r.readPeer()
	offer := r.readOffer()

	if err := r.eng.AcceptOffer(contactID, typ, offer); err != nil {
		fmt.Printf("   Error: accepting offer failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Offer from %s accepted\n", contactID)
}

func (r *runner) pullOrReject() {
	contactID, typ := r.readPeer()

	if err := r.eng.PullOrReject(contactID, typ); err != nil {
		fmt.Printf("   Error: pulling offer failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Negotiation with %s pulled\n", contactID)
}

func (r *runner) sendQuoteRequest() {
	side := r.readSide()

readRange:
	fmt.Printf("\tRange [1] 0-1 [2] 1-5 [3] 5-10 [4] 10-50 [5] 50-100 [6] 100-250: ")
	bucket, err := r.readInt()
	if err != nil || bucket < 1 || bucket > 6 {
		fmt.Println("   Error: invalid range number, please try again")
		goto readRange
	}

	req := domain.QuoteRequest{OurSide: side, RangeType: domain.RangeType(bucket)}
	if err := r.eng.SendQuoteRequest(req); err != nil {
		fmt.Printf("   Error: broadcasting quote request failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Quote request broadcast (%s, %s XBT)\n", side, domain.RangeType(bucket))
}

func (r *runner) sendQuoteResponse() {
	contactID := r.readLine(`Requestor's name`)
	side := r.readSide()
	price := r.readRange(`Price`)
	amount := r.readRange(`Amount`)

	resp := domain.QuoteResponse{OurSide: side, Price: price, Amount: amount}
	if err := r.eng.SendQuoteResponse(contactID, resp); err != nil {
		fmt.Printf("   Error: sending quote response failed due to %s\n", err.Error())
		return
	}
	fmt.Printf("-> Quote response sent to %s\n", contactID)
}

func (r *runner) listPeers() {
	contacts, requests, responses := r.eng.Peers()

	fmt.Println("-> Peers:")
	for _, p := range contacts {
		fmt.Printf("\t[contact] %s: %s (%s %d @ %d)\n", p.ContactID, p.State, p.Side, p.Amount, p.Price)
	}
	for _, p := range requests {
		slot := ``
		if p.OwnSlot {
			slot = ` (own)`
		}
		fmt.Printf("\t[request]%s %s: %s (%s, %s XBT)\n", slot, p.ContactID, p.State, p.Request.OurSide, p.Request.RangeType)
	}
	for _, p := range responses {
		fmt.Printf("\t[response] %s: %s (%s, %d-%d XBT @ %d-%d)\n", p.ContactID, p.State, p.Response.OurSide,
			p.Response.Amount.Lower, p.Response.Amount.Upper, p.Response.Price.Lower, p.Response.Price.Upper)
	}
	if len(contacts)+len(requests)+len(responses) == 0 {
		fmt.Println("\t(none)")
	}
}

func (r *runner) dealHistory() {
	outcomes, err := r.jrn.Outcomes(20)
	if err != nil {
		fmt.Printf("   Error: reading deal history failed due to %s\n", err.Error())
		return
	}

	fmt.Println("-> Deal history:")
	for _, o := range outcomes {
		fmt.Printf("\t%s %s %d @ %d [%s] %s\n", o.ClosedAt.Format(`2006-01-02 15:04`), o.Side, o.Amount, o.Price, o.Result, o.ErrorMsg)
	}
	if len(outcomes) == 0 {
		fmt.Println("\t(empty)")
	}
}

func (r *runner) readOffer() domain.Offer {
	side := r.readSide()

readAmount:
	fmt.Printf("\tAmount (satoshi): ")
	amount, err := r.readInt64()
	if err != nil {
		fmt.Println("   Error: reading amount failed, please try again")
		goto readAmount
	}

readPrice:
	fmt.Printf("\tPrice (cents): ")
	price, err := r.readInt64()
	if err != nil {
		fmt.Println("   Error: reading price failed, please try again")
		goto readPrice
	}

	return domain.Offer{
		OurSide:     side,
		Amount:      amount,
		Price:       price,
		WalletID:    r.wallet.WalletID(),
		AuthAddress: r.authAddr,
		RecvAddress: r.recvAddr,
	}
}

func (r *runner) readPeer() (string, domain.PeerType) {
	contactID := r.readLine(`Peer name`)

readType:
	fmt.Printf("\tPeer type [1] contact [2] request [3] response: ")
	typ, err := r.readInt()
	if err != nil || typ < 1 || typ > 3 {
		fmt.Println("   Error: invalid peer type, please try again")
		goto readType
	}

	return contactID, domain.PeerType(typ - 1)
}

func (r *runner) readSide() domain.Side {
readSide:
	fmt.Printf("\tSide [1] buy [2] sell: ")
	side, err := r.readInt()
	if err != nil || side < 1 || side > 2 {
		fmt.Println("   Error: invalid side, please try again")
		goto readSide
	}
	return domain.Side(side)
}

func (r *runner) readRange(label string) domain.Range {
readLower:
	fmt.Printf("\t%s lower bound: ", label)
	lower, err := r.readInt64()
	if err != nil {
		fmt.Println("   Error: reading bound failed, please try again")
		goto readLower
	}

readUpper:
	fmt.Printf("\t%s upper bound: ", label)
	upper, err := r.readInt64()
	if err != nil {
		fmt.Println("   Error: reading bound failed, please try again")
		goto readUpper
	}

	return domain.Range{Lower: lower, Upper: upper}
}

func (r *runner) readLine(label string) string {
readLine:
	fmt.Printf("\t%s: ", label)
	text, err := r.reader.ReadString('\n')
	if err != nil {
		fmt.Println("   Error: reading input failed, please try again")
		goto readLine
	}
	return strings.TrimSpace(text)
}

func (r *runner) readInt() (int, error) {
	text, err := r.reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(text))
}

func (r *runner) readInt64() (int64, error) {
	text, err := r.reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(text), 10, 64)
}

func (r *runner) listen() {
	for {
		text := <-r.recChan
		if r.disCmds == 1 {
			atomic.StoreUint64(&r.disCmds, 0)
			fmt.Println()
		}
		fmt.Printf("-> %s\n", text)
	}
}
