package container

import (
	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/services"
	"github.com/tryfix/log"
)

// Container carries the wired dependencies of the engine.
type Container struct {
	Cfg *domain.Config
	Log log.Logger

	Wallets  services.WalletManager
	Signer   services.Signer
	Builder  services.TxBuilder
	Verifier services.AddressVerifier

	Bridge    services.Bridge
	Contacts  services.ContactSender
	Broadcast services.PublicSender

	Events  services.EventSink
	Journal services.Journal

	OutChan chan string
}
