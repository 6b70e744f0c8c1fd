package protocol

import (
	"strings"

	"github.com/c360/twinstreams/errors"
)

// Group identifies the entity kind a topic addresses.
type Group string

const (
	// GroupThings addresses digital twin entities.
	GroupThings Group = "things"
	// GroupPolicies addresses access control policies.
	GroupPolicies Group = "policies"
)

// Channel separates persisted twin traffic from live peer-to-peer traffic.
// Policy topics carry no channel segment.
type Channel string

const (
	// ChannelTwin routes through the persisted twin state.
	ChannelTwin Channel = "twin"
	// ChannelLive routes directly between connected clients.
	ChannelLive Channel = "live"
	// ChannelNone marks topics without a channel segment (policies).
	ChannelNone Channel = ""
)

// Criterion classifies what kind of interaction a topic carries.
type Criterion string

const (
	CriterionCommands Criterion = "commands"
	CriterionEvents   Criterion = "events"
	CriterionMessages Criterion = "messages"
	CriterionSearch   Criterion = "search"
	CriterionErrors   Criterion = "errors"
)

// Action is the final topic segment: the command verb, event kind, search
// control verb, or message subject. Message subjects may contain slashes.
type Action string

// Command and event actions.
const (
	ActionCreate   Action = "create"
	ActionRetrieve Action = "retrieve"
	ActionModify   Action = "modify"
	ActionMerge    Action = "merge"
	ActionDelete   Action = "delete"

	ActionCreated  Action = "created"
	ActionModified Action = "modified"
	ActionMerged   Action = "merged"
	ActionDeleted  Action = "deleted"
)

// Search control actions.
const (
	ActionSubscribe Action = "subscribe"
	ActionRequest   Action = "request"
	ActionCancel    Action = "cancel"
	ActionNext      Action = "next"
	ActionComplete  Action = "complete"
	ActionFailed    Action = "failed"
)

// TopicPlaceholder fills the namespace and name segments of topics that do
// not address a single entity, such as search topics.
const TopicPlaceholder = "_"

// Topic is the structured form of a protocol topic path, for example
// "org.acme/sensor-1/things/twin/commands/modify". Namespace and Name
// identify the entity, Group/Channel/Criterion/Action describe the
// interaction.
type Topic struct {
	Namespace string
	Name      string
	Group     Group
	Channel   Channel
	Criterion Criterion
	Action    Action
}

// ParseTopic parses the slash-separated wire form of a topic.
func ParseTopic(s string) (Topic, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 4 {
		return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
			"topic "+s+" has too few segments")
	}

	t := Topic{Namespace: parts[0], Name: parts[1], Group: Group(parts[2])}
	if t.Namespace == "" || t.Name == "" {
		return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
			"topic "+s+" has an empty entity segment")
	}

	rest := parts[3:]
	switch t.Group {
	case GroupThings:
		if len(rest) < 2 {
			return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
				"things topic "+s+" is missing channel or criterion")
		}
		t.Channel = Channel(rest[0])
		if t.Channel != ChannelTwin && t.Channel != ChannelLive {
			return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
				"things topic "+s+" has unknown channel "+rest[0])
		}
		rest = rest[1:]
	case GroupPolicies:
		t.Channel = ChannelNone
	default:
		return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
			"topic "+s+" has unknown group "+parts[2])
	}

	t.Criterion = Criterion(rest[0])
	switch t.Criterion {
	case CriterionCommands, CriterionEvents, CriterionMessages, CriterionSearch, CriterionErrors:
	default:
		return Topic{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "ParseTopic",
			"topic "+s+" has unknown criterion "+rest[0])
	}

	// Message subjects may themselves contain slashes, so everything after
	// the criterion is one action string. The errors criterion has none.
	if len(rest) > 1 {
		t.Action = Action(strings.Join(rest[1:], "/"))
	}
	return t, nil
}

// MustParseTopic is ParseTopic that panics on error. For tests and wiring
// with literal topics.
func MustParseTopic(s string) Topic {
	t, err := ParseTopic(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the slash-separated wire form.
func (t Topic) String() string {
	var b strings.Builder
	b.WriteString(t.Namespace)
	b.WriteByte('/')
	b.WriteString(t.Name)
	b.WriteByte('/')
	b.WriteString(string(t.Group))
	if t.Channel != ChannelNone {
		b.WriteByte('/')
		b.WriteString(string(t.Channel))
	}
	b.WriteByte('/')
	b.WriteString(string(t.Criterion))
	if t.Action != "" {
		b.WriteByte('/')
		b.WriteString(string(t.Action))
	}
	return b.String()
}

// EntityID returns the "namespace:name" form of the addressed entity.
func (t Topic) EntityID() string {
	return t.Namespace + ":" + t.Name
}

// IsZero reports whether the topic is the zero value.
func (t Topic) IsZero() bool {
	return t == Topic{}
}

// MarshalJSON encodes the topic as its wire string.
func (t Topic) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes the topic from its wire string.
func (t *Topic) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return errors.WrapInvalid(errors.ErrMalformedEnvelope, "Topic", "UnmarshalJSON",
			"topic is not a JSON string")
	}
	parsed, err := ParseTopic(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
