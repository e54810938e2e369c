package domain

// Kind discriminates the three stored record families.
type Kind string

const (
	KindObject   Kind = "object"
	KindActor    Kind = "actor"
	KindActivity Kind = "activity"
)

var activityTypes = map[string]struct{}{
	"Accept": {}, "Add": {}, "Announce": {}, "Arrive": {}, "Block": {},
	"Create": {}, "Delete": {}, "Dislike": {}, "Flag": {}, "Follow": {},
	"Ignore": {}, "Invite": {}, "Join": {}, "Leave": {}, "Like": {},
	"Listen": {}, "Move": {}, "Offer": {}, "Question": {}, "Reject": {},
	"Read": {}, "Remove": {}, "TentativeAccept": {}, "TentativeReject": {},
	"Travel": {}, "Undo": {}, "Update": {}, "View": {},
}

var actorTypes = map[string]struct{}{
	"Application": {}, "Group": {}, "Organization": {}, "Person": {}, "Service": {},
}

// Classify resolves a payload to exactly one record kind. The first matching
// shape wins: an activity-shaped actor is an activity. Payloads with neither a
// type nor an id match nothing and fail with ErrUnsupportedType.
func Classify(p Payload) (Kind, error) {
	types := p.Type().IDs()
	for _, t := range types {
		if _, ok := activityTypes[t]; ok {
			return KindActivity, nil
		}
	}
	if !p.Ref("actor").IsZero() && (!p.Ref("object").IsZero() || !p.Ref("target").IsZero()) {
		return KindActivity, nil
	}
	for _, t := range types {
		if _, ok := actorTypes[t]; ok {
			return KindActor, nil
		}
	}
	if len(types) > 0 || p.ID() != "" {
		return KindObject, nil
	}
	return "", ErrUnsupportedType
}
