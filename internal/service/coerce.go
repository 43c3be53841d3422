package service

import (
	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

// CoerceMessageType reconciles a declared message type against the resolved
// recipient set, producing the effective type used for delivery and
// analytics. Pure function; the immediate-send and scheduled-dispatch paths
// call exactly this and must agree.
//
// Rules apply in fixed order, first match wins:
//  1. announcement not reaching every eligible guest -> direct
//  2. channel with no tags -> direct
//  3. direct reaching exactly the full eligible set -> announcement
func CoerceMessageType(declared domain.MessageType, recipientIDs, eligibleIDs []uuid.UUID, tags []string) domain.MessageType {
	switch {
	case declared == domain.MessageAnnouncement && len(recipientIDs) != len(eligibleIDs):
		return domain.MessageDirect
	case declared == domain.MessageChannel && len(tags) == 0:
		return domain.MessageDirect
	case declared == domain.MessageDirect && sameIDSet(recipientIDs, eligibleIDs):
		return domain.MessageAnnouncement
	default:
		return declared
	}
}

// sameIDSet reports exact set equality, not superset.
func sameIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return false // an empty direct message is not an announcement
	}
	set := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
