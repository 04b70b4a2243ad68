package policy

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/enclave/internal/entity"
)

// Defaults bound total storage. A single deployment is expected to stay
// well below them; they exist so growth is limited by policy, not by disk.
const (
	DefaultMaxOwners        = 1_000
	DefaultMaxItemsPerOwner = 500
	DefaultMaxPayloadChars  = 1_000_000
	DefaultMaxGrantees      = 50
)

// Limits are the Capacity Guard ceilings. They apply to every indexed kind.
type Limits struct {
	MaxOwners        int `json:"max_owners"`          // distinct owners per kind
	MaxItemsPerOwner int `json:"max_items_per_owner"` // entities per owner per kind
	MaxPayloadChars  int `json:"max_payload_chars"`   // Unicode code points per payload
	MaxGrantees      int `json:"max_grantees"`        // grantees per note
}

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxOwners:        DefaultMaxOwners,
		MaxItemsPerOwner: DefaultMaxItemsPerOwner,
		MaxPayloadChars:  DefaultMaxPayloadChars,
		MaxGrantees:      DefaultMaxGrantees,
	}
}

// Validate rejects non-positive ceilings.
func (l Limits) Validate() error {
	if l.MaxOwners <= 0 || l.MaxItemsPerOwner <= 0 || l.MaxPayloadChars <= 0 || l.MaxGrantees <= 0 {
		return fmt.Errorf("limits must be positive: %+v", l)
	}
	return nil
}

// CheckNewItem runs before an entity joins an owner index.
//
// ownerItems is the current size of the owner's bucket (0 if the owner has
// none); distinctOwners is the number of owners already in the index.
func (l Limits) CheckNewItem(kind entity.Kind, distinctOwners, ownerItems int) error {
	if ownerItems == 0 {
		if distinctOwners >= l.MaxOwners {
			return entity.CapacityExceeded(
				fmt.Sprintf("%s owner limit reached (%d)", kind, l.MaxOwners))
		}
		return nil
	}
	if ownerItems >= l.MaxItemsPerOwner {
		return entity.CapacityExceeded(
			fmt.Sprintf("%s per-owner limit reached (%d)", kind, l.MaxItemsPerOwner))
	}
	return nil
}

// CheckPayload runs before any payload write.
func (l Limits) CheckPayload(payload string) error {
	if n := utf8.RuneCountInString(payload); n > l.MaxPayloadChars {
		return entity.PayloadTooLarge(n, l.MaxPayloadChars)
	}
	return nil
}

// CheckGrantee runs before a new grantee is added to a note that has
// current grantees.
func (l Limits) CheckGrantee(current int) error {
	if current >= l.MaxGrantees {
		return entity.CapacityExceeded(
			fmt.Sprintf("note share limit reached (%d)", l.MaxGrantees))
	}
	return nil
}
