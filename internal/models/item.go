package models

import (
	"errors"
	"fmt"
)

type ItemKind string

const (
	ItemKindTicket           ItemKind = "ticket"
	ItemKindTicketPricedSlot ItemKind = "ticket_priced_slot"
	ItemKindAddon            ItemKind = "addon"
	ItemKindPackage          ItemKind = "package"
	ItemKindAppointment      ItemKind = "appointment"
)

var ErrUnknownItemKind = errors.New("unknown item kind")

// ItemRef identifies one purchasable thing. The implementations below are the
// only ones; the unexported method keeps the set closed.
type ItemRef interface {
	Kind() ItemKind
	columns() (refID, slotID *int64)
}

type TicketRef struct {
	TicketID int64
}

type PricedSlotRef struct {
	TicketID int64
	SlotID   int64
}

type AddonRef struct {
	AddonID int64
}

type PackageRef struct {
	PackageID int64
}

// AppointmentRef may carry the booked slot.
type AppointmentRef struct {
	AppointmentID int64
	SlotID        *int64
}

func (TicketRef) Kind() ItemKind      { return ItemKindTicket }
func (PricedSlotRef) Kind() ItemKind  { return ItemKindTicketPricedSlot }
func (AddonRef) Kind() ItemKind       { return ItemKindAddon }
func (PackageRef) Kind() ItemKind     { return ItemKindPackage }
func (AppointmentRef) Kind() ItemKind { return ItemKindAppointment }

func (r TicketRef) columns() (*int64, *int64)     { return int64Ptr(r.TicketID), nil }
func (r PricedSlotRef) columns() (*int64, *int64) { return int64Ptr(r.TicketID), int64Ptr(r.SlotID) }
func (r AddonRef) columns() (*int64, *int64)      { return int64Ptr(r.AddonID), nil }
func (r PackageRef) columns() (*int64, *int64)    { return int64Ptr(r.PackageID), nil }
func (r AppointmentRef) columns() (*int64, *int64) {
	if r.SlotID == nil {
		return int64Ptr(r.AppointmentID), nil
	}
	return int64Ptr(r.AppointmentID), int64Ptr(*r.SlotID)
}

// RefColumns flattens a reference into its persisted (item_kind, item_ref_id, slot_ref_id) triple.
func RefColumns(ref ItemRef) (ItemKind, *int64, *int64) {
	refID, slotID := ref.columns()
	return ref.Kind(), refID, slotID
}

// NewItemRef rebuilds a reference from its persisted columns.
func NewItemRef(kind ItemKind, refID, slotID *int64) (ItemRef, error) {
	if refID == nil {
		return nil, fmt.Errorf("%s: missing reference id", kind)
	}
	switch kind {
	case ItemKindTicket:
		return TicketRef{TicketID: *refID}, nil
	case ItemKindTicketPricedSlot:
		if slotID == nil {
			return nil, fmt.Errorf("%s: missing slot id", kind)
		}
		return PricedSlotRef{TicketID: *refID, SlotID: *slotID}, nil
	case ItemKindAddon:
		return AddonRef{AddonID: *refID}, nil
	case ItemKindPackage:
		return PackageRef{PackageID: *refID}, nil
	case ItemKindAppointment:
		ref := AppointmentRef{AppointmentID: *refID}
		if slotID != nil {
			ref.SlotID = int64Ptr(*slotID)
		}
		return ref, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemKind, kind)
	}
}

// SameRef reports whether two references point at the same purchasable thing.
func SameRef(a, b ItemRef) bool {
	ak, ar, as := RefColumns(a)
	bk, br, bs := RefColumns(b)
	return ak == bk && eqInt64Ptr(ar, br) && eqInt64Ptr(as, bs)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func eqInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
