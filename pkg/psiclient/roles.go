// Package psiclient implements the two client roles of the server-mediated
// private set intersection protocol.
//
// The initiator (role A) and joiner (role B) never talk to each other
// directly; the server relays blinded values between them. Each role holds
// a per-session secret exponent, and commutative blinding in the psigroup
// group lets the initiator recognize overlapping items without either side
// revealing non-overlapping ones:
//
//	step 1  initiator publishes H(x_i)^a
//	step 2  joiner responds with H(y_j)^b followed by (H(x_i)^a)^b
//	step 3  initiator matches (H(y_j)^b)^a against H(x_i)^ab
package psiclient

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/softspot/proximity/pkg/psigroup"
)

var (
	// ErrEmptySet is returned when a role is created with no items.
	ErrEmptySet = errors.New("item set is empty")

	// ErrMalformedResponse is returned when a peer response does not
	// contain at least one joiner value per protocol step 2.
	ErrMalformedResponse = errors.New("malformed peer response")

	// ErrInvalidElement is returned when a received value is outside
	// [1, p-1].
	ErrInvalidElement = errors.New("value outside group range")
)

// Initiator is role A: it opens a session with its blinded item set and
// later computes the intersection from joiner responses.
type Initiator struct {
	userID string
	secret *big.Int
	items  []string
}

// NewInitiator creates an initiator for the given item set, sampling a
// fresh blinding exponent.
func NewInitiator(userID string, items []string) (*Initiator, error) {
	if len(items) == 0 {
		return nil, ErrEmptySet
	}
	secret, err := psigroup.RandomExponent()
	if err != nil {
		return nil, err
	}
	return &Initiator{userID: userID, secret: secret, items: append([]string(nil), items...)}, nil
}

// UserID returns the user the role acts for.
func (a *Initiator) UserID() string { return a.userID }

// BlindedItems returns H(x_i)^a for every item, in item order. This is the
// step-1 payload.
func (a *Initiator) BlindedItems() psigroup.Elements {
	out := make(psigroup.Elements, len(a.items))
	for i, item := range a.items {
		out[i] = psigroup.Blind(psigroup.HashToGroup([]byte(item)), a.secret)
	}
	return out
}

// Intersect computes the intersection with one joiner from its step-2
// response: n joiner-blinded values H(y_j)^b followed by the initiator's
// m values re-blinded to H(x_i)^ab, in submission order. Returned items
// keep the initiator's order.
func (a *Initiator) Intersect(response psigroup.Elements) ([]string, error) {
	n := len(response) - len(a.items)
	if n < 1 {
		return nil, ErrMalformedResponse
	}
	for i, v := range response {
		if !psigroup.ValidElement(v) {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidElement, i)
		}
	}

	// {H(y_j)^ab}
	doubleBlindedY := make(map[string]struct{}, n)
	for _, y := range response[:n] {
		doubleBlindedY[psigroup.Blind(y, a.secret).Text(16)] = struct{}{}
	}

	var intersection []string
	for i, item := range a.items {
		if _, ok := doubleBlindedY[response[n+i].Text(16)]; ok {
			intersection = append(intersection, item)
		}
	}
	return intersection, nil
}

// Joiner is role B: it answers an open session with its own blinded set
// and the re-blinded initiator values.
type Joiner struct {
	userID string
	secret *big.Int
	items  []string
}

// NewJoiner creates a joiner for the given item set, sampling a fresh
// blinding exponent.
func NewJoiner(userID string, items []string) (*Joiner, error) {
	if len(items) == 0 {
		return nil, ErrEmptySet
	}
	secret, err := psigroup.RandomExponent()
	if err != nil {
		return nil, err
	}
	return &Joiner{userID: userID, secret: secret, items: append([]string(nil), items...)}, nil
}

// UserID returns the user the role acts for.
func (b *Joiner) UserID() string { return b.userID }

// Respond builds the step-2 payload for the given initiator values:
// H(y_j)^b for the joiner's items followed by (H(x_i)^a)^b in the
// initiator's order.
func (b *Joiner) Respond(initiatorValues psigroup.Elements) (psigroup.Elements, error) {
	if len(initiatorValues) == 0 {
		return nil, ErrMalformedResponse
	}
	for i, v := range initiatorValues {
		if !psigroup.ValidElement(v) {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidElement, i)
		}
	}

	out := make(psigroup.Elements, 0, len(b.items)+len(initiatorValues))
	for _, item := range b.items {
		out = append(out, psigroup.Blind(psigroup.HashToGroup([]byte(item)), b.secret))
	}
	for _, v := range initiatorValues {
		out = append(out, psigroup.Blind(v, b.secret))
	}
	return out, nil
}
