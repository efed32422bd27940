package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// BankState is the confirmed bank window.
type BankState struct {
	Open           bool                     `json:"open"`
	Banker         protocol.GUID            `json:"banker"`
	PurchasedSlots uint32                   `json:"purchased_slots"`
	LastBuyResult  *protocol.BankSlotResult `json:"last_buy_result,omitempty"`
}

// Bank mirrors the personal bank window.
type Bank struct {
	*subsystem.Facade[BankState]

	opened  *subsystem.Feed[protocol.BankWindow]
	results *subsystem.Feed[protocol.BuyBankSlotResult]
	closed  *subsystem.Feed[protocol.WindowClosed]
}

// NewBank creates the bank facade.
func NewBank(r *router.Router, opts subsystem.Options) *Bank {
	b := &Bank{Facade: subsystem.New("bank", r, BankState{}, opts)}
	b.opened = subsystem.Handle(b.Facade, protocol.SmsgShowBank, protocol.ParseShowBank,
		func(s *BankState, w *protocol.BankWindow) {
			s.Open = true
			s.Banker = w.Banker
		})
	b.results = subsystem.Handle(b.Facade, protocol.SmsgBuyBankSlotResult, protocol.ParseBuyBankSlotResult,
		func(s *BankState, res *protocol.BuyBankSlotResult) {
			result := res.Result
			s.LastBuyResult = &result
			if result == protocol.BankSlotOK {
				s.PurchasedSlots++
			}
		})
	b.closed = subsystem.HandleChanges(b.Facade, protocol.SmsgGossipComplete, protocol.ParseGossipComplete,
		func(s *BankState, _ *protocol.WindowClosed) bool {
			if !s.Open {
				return false
			}
			*s = b.Rest()
			return true
		})
	return b
}

// IsOpen reports whether the bank window is open.
func (b *Bank) IsOpen() bool { return b.Snapshot().Open }

// Opened returns the feed of bank window confirmations.
func (b *Bank) Opened() (<-chan protocol.BankWindow, func()) { return b.opened.Subscribe() }

// Closed returns the feed of NPC window close confirmations.
func (b *Bank) Closed() (<-chan protocol.WindowClosed, func()) { return b.closed.Subscribe() }

// SlotResults returns the feed of bank slot purchase results.
func (b *Bank) SlotResults() (<-chan protocol.BuyBankSlotResult, func()) {
	return b.results.Subscribe()
}

// Activate asks banker to open the bank.
func (b *Bank) Activate(ctx context.Context, banker protocol.GUID) error {
	return b.Send(ctx, protocol.CmsgBankerActivate, protocol.BuildBankerActivate(banker))
}

// BuySlot buys the next bank bag slot.
func (b *Bank) BuySlot(ctx context.Context) error {
	s := b.Snapshot()
	if err := b.Require(s.Open, "buy slot", "bank is not open"); err != nil {
		return err
	}
	return b.Send(ctx, protocol.CmsgBuyBankSlot, protocol.BuildBuyBankSlot(s.Banker))
}

// Deposit moves the item at bag/slot into the bank.
func (b *Bank) Deposit(ctx context.Context, bag, slot uint8) error {
	if err := b.Require(b.IsOpen(), "deposit", "bank is not open"); err != nil {
		return err
	}
	return b.Send(ctx, protocol.CmsgAutobankItem, protocol.BuildAutobankItem(bag, slot))
}

// Withdraw moves the bank item at bag/slot into the inventory.
func (b *Bank) Withdraw(ctx context.Context, bag, slot uint8) error {
	if err := b.Require(b.IsOpen(), "withdraw", "bank is not open"); err != nil {
		return err
	}
	return b.Send(ctx, protocol.CmsgAutostoreBankItem, protocol.BuildAutostoreBankItem(bag, slot))
}
