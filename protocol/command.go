package protocol

// ThingCommand addresses one thing on one channel and stamps command
// envelopes for it. The handle layers keep one per thing so every operation
// builds its envelope the same way.
type ThingCommand struct {
	Namespace string
	Name      string
	Channel   Channel
}

// Envelope builds a command envelope for the addressed thing.
func (c ThingCommand) Envelope(action Action, path string, value any, opts ...Option) (*Envelope, error) {
	return New(Topic{
		Namespace: c.Namespace,
		Name:      c.Name,
		Group:     GroupThings,
		Channel:   c.Channel,
		Criterion: CriterionCommands,
		Action:    action,
	}, path, value, opts...)
}

// PolicyCommand addresses one policy. Policy topics carry no channel
// segment.
type PolicyCommand struct {
	Namespace string
	Name      string
}

// Envelope builds a command envelope for the addressed policy.
func (c PolicyCommand) Envelope(action Action, path string, value any, opts ...Option) (*Envelope, error) {
	return New(Topic{
		Namespace: c.Namespace,
		Name:      c.Name,
		Group:     GroupPolicies,
		Channel:   ChannelNone,
		Criterion: CriterionCommands,
		Action:    action,
	}, path, value, opts...)
}
