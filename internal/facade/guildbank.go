package facade

import (
	"context"
	"sync/atomic"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// GuildBankState is the confirmed guild bank window. Items holds the
// contents of Tab only and is replaced whenever a tab is listed.
type GuildBankState struct {
	Open                 bool                     `json:"open"`
	Banker               protocol.GUID            `json:"banker"`
	Money                uint64                   `json:"money"`
	Tab                  uint8                    `json:"tab"`
	Tabs                 []protocol.GuildBankTab  `json:"tabs"`
	Items                []protocol.GuildBankItem `json:"items"`
	WithdrawalsLeft      int32                    `json:"withdrawals_left"`
	MoneyWithdrawalsLeft int32                    `json:"money_withdrawals_left"`
}

// GuildBank mirrors the guild bank window.
type GuildBank struct {
	*subsystem.Facade[GuildBankState]

	// pending is the banker of an open request that went out and has not
	// been answered. The list does not name its banker, so the first list
	// that opens the window claims it.
	pending atomic.Uint64

	lists     *subsystem.Feed[protocol.GuildBankList]
	withdrawn *subsystem.Feed[protocol.GuildBankMoneyWithdrawn]
}

// NewGuildBank creates the guild bank facade.
func NewGuildBank(r *router.Router, opts subsystem.Options) *GuildBank {
	gb := &GuildBank{Facade: subsystem.New("guildbank", r, GuildBankState{}, opts)}
	gb.lists = subsystem.Handle(gb.Facade, protocol.SmsgGuildBankList, protocol.ParseGuildBankList,
		func(s *GuildBankState, l *protocol.GuildBankList) {
			if !s.Open {
				s.Open = true
				s.Banker = protocol.GUID(gb.pending.Swap(0))
			}
			s.Money = l.Money
			s.Tab = l.Tab
			s.WithdrawalsLeft = l.WithdrawalsLeft
			if l.HasTabs {
				s.Tabs = l.Tabs
			}
			s.Items = l.Items
		})
	gb.withdrawn = subsystem.Handle(gb.Facade, protocol.MsgGuildBankMoneyWithdrawn, protocol.ParseGuildBankMoneyWithdrawn,
		func(s *GuildBankState, w *protocol.GuildBankMoneyWithdrawn) {
			s.MoneyWithdrawalsLeft = w.Remaining
		})
	subsystem.HandleChanges(gb.Facade, protocol.SmsgGossipComplete, protocol.ParseGossipComplete,
		func(s *GuildBankState, _ *protocol.WindowClosed) bool {
			gb.pending.Store(0)
			if !s.Open {
				return false
			}
			*s = gb.Rest()
			return true
		})
	gb.OnConnectionLost(func() { gb.pending.Store(0) })
	return gb
}

// IsOpen reports whether the guild bank window is open.
func (gb *GuildBank) IsOpen() bool { return gb.Snapshot().Open }

// Lists returns the feed of tab listings.
func (gb *GuildBank) Lists() (<-chan protocol.GuildBankList, func()) { return gb.lists.Subscribe() }

// Withdrawals returns the feed of money withdrawal allowances.
func (gb *GuildBank) Withdrawals() (<-chan protocol.GuildBankMoneyWithdrawn, func()) {
	return gb.withdrawn.Subscribe()
}

// Activate asks banker to open the guild bank. full requests the tab
// list as well.
func (gb *GuildBank) Activate(ctx context.Context, banker protocol.GUID, full bool) error {
	// Set before sending: the list can arrive before Send returns.
	gb.pending.Store(uint64(banker))
	if err := gb.Send(ctx, protocol.CmsgGuildBankerActivate, protocol.BuildGuildBankerActivate(banker, full)); err != nil {
		gb.pending.CompareAndSwap(uint64(banker), 0)
		return err
	}
	return nil
}

// QueryTab lists one tab.
func (gb *GuildBank) QueryTab(ctx context.Context, tab uint8, full bool) error {
	s := gb.Snapshot()
	if err := gb.Require(s.Open, "query tab", "guild bank is not open"); err != nil {
		return err
	}
	return gb.Send(ctx, protocol.CmsgGuildBankQueryTab, protocol.BuildGuildBankQueryTab(s.Banker, tab, full))
}

// DepositMoney deposits amount copper.
func (gb *GuildBank) DepositMoney(ctx context.Context, amount uint32) error {
	s := gb.Snapshot()
	if err := gb.Require(s.Open, "deposit money", "guild bank is not open"); err != nil {
		return err
	}
	if err := gb.Require(amount > 0, "deposit money", "amount must be positive"); err != nil {
		return err
	}
	return gb.Send(ctx, protocol.CmsgGuildBankDepositMoney, protocol.BuildGuildBankMoney(s.Banker, amount))
}

// WithdrawMoney withdraws amount copper, which may not exceed the
// confirmed balance.
func (gb *GuildBank) WithdrawMoney(ctx context.Context, amount uint32) error {
	s := gb.Snapshot()
	if err := gb.Require(s.Open, "withdraw money", "guild bank is not open"); err != nil {
		return err
	}
	if err := gb.Require(amount > 0 && uint64(amount) <= s.Money, "withdraw money", "amount exceeds guild bank balance"); err != nil {
		return err
	}
	return gb.Send(ctx, protocol.CmsgGuildBankWithdrawMoney, protocol.BuildGuildBankMoney(s.Banker, amount))
}
