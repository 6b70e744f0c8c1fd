package policies

import (
	"context"
	"log/slog"
	"strings"

	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// Client hands out policy handles.
type Client struct {
	exchange *correlation.Exchange
	logger   *slog.Logger
}

// NewClient creates a policy client on the given exchange. Policies travel
// over the twin connection, so this is the twin exchange.
func NewClient(exchange *correlation.Exchange, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		exchange: exchange,
		logger:   logger.With("component", "policies"),
	}
}

// Policy returns a handle for the given policy.
func (c *Client) Policy(id model.NamespacedID) *Handle {
	return &Handle{
		id: id,
		cmd: protocol.PolicyCommand{
			Namespace: id.Namespace,
			Name:      id.Name,
		},
		exchange: c.exchange,
	}
}

// Handle addresses one policy. Operations are synchronous; backend
// rejections surface as *protocol.Error through errors.As.
type Handle struct {
	id       model.NamespacedID
	cmd      protocol.PolicyCommand
	exchange *correlation.Exchange
}

// ID returns the policy this handle addresses.
func (h *Handle) ID() model.NamespacedID {
	return h.id
}

func (h *Handle) run(ctx context.Context, method string, action protocol.Action, path string, value any, opts []protocol.Option) (*protocol.Envelope, error) {
	if err := h.id.Validate(); err != nil {
		return nil, err
	}
	env, err := h.cmd.Envelope(action, path, value, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := h.exchange.Request(ctx, env)
	if err != nil {
		return nil, errors.Wrap(err, "PolicyHandle", method, string(action)+" "+h.id.String())
	}
	return resp, nil
}

// Create registers the policy and returns the created state. A zero policy
// id is stamped with the handle id; a different one is rejected before
// anything is sent.
func (h *Handle) Create(ctx context.Context, policy model.Policy, opts ...protocol.Option) (*model.Policy, error) {
	if policy.ID.IsZero() {
		policy.ID = h.id
	} else if policy.ID != h.id {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "PolicyHandle", "Create",
			"policy id "+policy.ID.String()+" does not match handle "+h.id.String())
	}
	resp, err := h.run(ctx, "Create", protocol.ActionCreate, "", policy, opts)
	if err != nil {
		return nil, err
	}
	return decodePolicy(resp, "Create")
}

// Retrieve fetches the policy.
func (h *Handle) Retrieve(ctx context.Context, opts ...protocol.Option) (*model.Policy, error) {
	resp, err := h.run(ctx, "Retrieve", protocol.ActionRetrieve, "", nil, opts)
	if err != nil {
		return nil, err
	}
	return decodePolicy(resp, "Retrieve")
}

// Put replaces the whole policy.
func (h *Handle) Put(ctx context.Context, policy model.Policy, opts ...protocol.Option) error {
	if !policy.ID.IsZero() && policy.ID != h.id {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "PolicyHandle", "Put",
			"policy id "+policy.ID.String()+" does not match handle "+h.id.String())
	}
	_, err := h.run(ctx, "Put", protocol.ActionModify, "", policy, opts)
	return err
}

// Delete removes the policy. Things still pointing at it become
// inaccessible, so this is usually the last step of a teardown.
func (h *Handle) Delete(ctx context.Context, opts ...protocol.Option) error {
	_, err := h.run(ctx, "Delete", protocol.ActionDelete, "", nil, opts)
	return err
}

// PutEntry sets one policy entry, replacing it if present.
func (h *Handle) PutEntry(ctx context.Context, label string, entry model.PolicyEntry, opts ...protocol.Option) error {
	p, err := entryPath("PutEntry", label)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "PutEntry", protocol.ActionModify, p, entry, opts)
	return err
}

// RetrieveEntry fetches one policy entry.
func (h *Handle) RetrieveEntry(ctx context.Context, label string, opts ...protocol.Option) (*model.PolicyEntry, error) {
	p, err := entryPath("RetrieveEntry", label)
	if err != nil {
		return nil, err
	}
	resp, err := h.run(ctx, "RetrieveEntry", protocol.ActionRetrieve, p, nil, opts)
	if err != nil {
		return nil, err
	}
	var entry model.PolicyEntry
	if err := resp.DecodeValue(&entry); err != nil {
		return nil, errors.Wrap(err, "PolicyHandle", "RetrieveEntry", "decode response")
	}
	return &entry, nil
}

// DeleteEntry removes one policy entry.
func (h *Handle) DeleteEntry(ctx context.Context, label string, opts ...protocol.Option) error {
	p, err := entryPath("DeleteEntry", label)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "DeleteEntry", protocol.ActionDelete, p, nil, opts)
	return err
}

func decodePolicy(resp *protocol.Envelope, method string) (*model.Policy, error) {
	var policy model.Policy
	if err := resp.DecodeValue(&policy); err != nil {
		return nil, errors.Wrap(err, "PolicyHandle", method, "decode response")
	}
	return &policy, nil
}

// entryPath validates an entry label and returns its pointer path. Labels
// are single path segments.
func entryPath(method, label string) (string, error) {
	if label == "" || strings.Contains(label, "/") {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, "PolicyHandle", method,
			"entry label "+label+" must be one non-empty segment")
	}
	return "/entries/" + label, nil
}
