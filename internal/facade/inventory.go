package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// InventoryState holds the last failure and the most recent arrivals,
// newest first.
type InventoryState struct {
	LastFailure *protocol.InventoryFailure `json:"last_failure,omitempty"`
	Received    []protocol.ItemPush        `json:"received"`
}

// Inventory moves items and mirrors what the server reports back.
type Inventory struct {
	*subsystem.Facade[InventoryState]

	failures *subsystem.Feed[protocol.InventoryFailure]
	pushes   *subsystem.Feed[protocol.ItemPush]
}

// NewInventory creates the inventory facade.
func NewInventory(r *router.Router, opts subsystem.Options) *Inventory {
	inv := &Inventory{Facade: subsystem.New("inventory", r, InventoryState{}, opts)}
	inv.failures = subsystem.HandleChanges(inv.Facade, protocol.SmsgInventoryChangeFailure, protocol.ParseInventoryChangeFailure,
		func(s *InventoryState, f *protocol.InventoryFailure) bool {
			if f.Error == protocol.InventoryOK {
				return false
			}
			failure := *f
			s.LastFailure = &failure
			return true
		})
	inv.pushes = subsystem.Handle(inv.Facade, protocol.SmsgItemPushResult, protocol.ParseItemPushResult,
		func(s *InventoryState, p *protocol.ItemPush) {
			s.Received = prepend(s.Received, *p, recentLimit)
		})
	return inv
}

// Failures returns the feed of inventory change failures.
func (inv *Inventory) Failures() (<-chan protocol.InventoryFailure, func()) {
	return inv.failures.Subscribe()
}

// Pushes returns the feed of item arrivals.
func (inv *Inventory) Pushes() (<-chan protocol.ItemPush, func()) { return inv.pushes.Subscribe() }

// Swap moves the item at srcBag/srcSlot to dstBag/dstSlot.
func (inv *Inventory) Swap(ctx context.Context, srcBag, srcSlot, dstBag, dstSlot uint8) error {
	return inv.Send(ctx, protocol.CmsgSwapItem, protocol.BuildSwapItem(dstBag, dstSlot, srcBag, srcSlot))
}

// SwapInventory swaps two backpack or equipment slots.
func (inv *Inventory) SwapInventory(ctx context.Context, srcSlot, dstSlot uint8) error {
	return inv.Send(ctx, protocol.CmsgSwapInvItem, protocol.BuildSwapInvItem(srcSlot, dstSlot))
}

// Split moves count items off the stack at srcBag/srcSlot.
func (inv *Inventory) Split(ctx context.Context, srcBag, srcSlot, dstBag, dstSlot uint8, count uint32) error {
	if err := inv.Require(count > 0, "split", "count must be positive"); err != nil {
		return err
	}
	return inv.Send(ctx, protocol.CmsgSplitItem, protocol.BuildSplitItem(srcBag, srcSlot, dstBag, dstSlot, count))
}

// Destroy destroys count items at bag/slot.
func (inv *Inventory) Destroy(ctx context.Context, bag, slot, count uint8) error {
	if err := inv.Require(count > 0, "destroy", "count must be positive"); err != nil {
		return err
	}
	return inv.Send(ctx, protocol.CmsgDestroyItem, protocol.BuildDestroyItem(bag, slot, count))
}
