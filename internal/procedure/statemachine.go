package procedure

import (
	"slices"
	"time"
)

type targetKind int

const (
	targetFixed targetKind = iota
	targetConditional
)

// target is the right-hand side of a transition rule: either a fixed
// status or a chooser evaluated against the procedure's policy.
type target struct {
	kind   targetKind
	status Status
	choose func(p *Procedure) Status
}

func fixed(s Status) target {
	return target{kind: targetFixed, status: s}
}

func conditional(choose func(p *Procedure) Status) target {
	return target{kind: targetConditional, choose: choose}
}

func (t target) resolve(p *Procedure) Status {
	if t.kind == targetConditional {
		return t.choose(p)
	}

	return t.status
}

var signing = map[Event]target{
	EventSignedOne: fixed(StatusPartiallySigned),
	EventSignedAll: fixed(StatusFullySigned),
	EventCancel:    fixed(StatusCancelled),
	EventExpire:    fixed(StatusExpired),
}

var transitions = map[Status]map[Event]target{
	StatusDraft: {
		EventConfigDone: fixed(StatusReadyToSend),
		EventCancel:     fixed(StatusCancelled),
	},
	StatusReadyToSend: {
		EventSendInvites: conditional(afterInvites),
		EventCancel:      fixed(StatusCancelled),
	},
	StatusInIdentity: {
		EventIdentityOK: conditional(afterIdentity),
		EventCancel:     fixed(StatusCancelled),
		EventExpire:     fixed(StatusExpired),
	},
	StatusInPayment: {
		EventPaymentsOK: fixed(StatusInSignature),
		EventCancel:     fixed(StatusCancelled),
		EventExpire:     fixed(StatusExpired),
	},
	StatusInSignature:     signing,
	StatusPartiallySigned: signing,
	StatusFullySigned: {
		EventOpenNotary: conditional(afterSignatures),
		EventComplete:   fixed(StatusCompleted),
		EventCancel:     fixed(StatusCancelled),
	},
	StatusNotaryPending: {
		EventNotaryOpens:  fixed(StatusNotaryInReview),
		EventNotaryReject: fixed(StatusRejected),
		EventCancel:       fixed(StatusCancelled),
	},
	StatusNotaryInReview: {
		EventNotaryUploadApprove: fixed(StatusNotaryApproved),
		EventNotaryReject:        fixed(StatusRejected),
		EventCancel:              fixed(StatusCancelled),
	},
	StatusNotaryApproved: {
		EventComplete: fixed(StatusCompleted),
		EventCancel:   fixed(StatusCancelled),
	},
	StatusRejected: {
		EventCancel: fixed(StatusCancelled),
	},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func afterInvites(p *Procedure) Status {
	if RequiresIdentity(p) {
		return StatusInIdentity
	}

	return afterIdentity(p)
}

func afterIdentity(p *Procedure) Status {
	if RequiresPaymentBeforeSignature(p) {
		return StatusInPayment
	}

	return StatusInSignature
}

func afterSignatures(p *Procedure) Status {
	if p.NotaryRequired {
		return StatusNotaryPending
	}

	return StatusCompleted
}

// RequiresIdentity reports whether the identity policy demands any proof.
func RequiresIdentity(p *Procedure) bool {
	return p.IdentityPolicy.Mode != "" && p.IdentityPolicy.Mode != IdentityNone
}

func RequiresPaymentBeforeSignature(p *Procedure) bool {
	return p.PaymentPolicy.RequireBeforeSignature
}

// CanTransition reports whether the table defines the (status, event) edge.
func CanTransition(status Status, event Event) bool {
	_, ok := transitions[status][event]
	return ok
}

// AllowedEvents lists the events legal from status, in declaration order.
func AllowedEvents(status Status) []Event {
	var out []Event

	for _, e := range Events {
		if CanTransition(status, e) {
			out = append(out, e)
		}
	}

	return out
}

// Resolve returns the status the event would lead to without applying it.
func Resolve(p *Procedure, event Event) (Status, error) {
	t, ok := transitions[p.Status][event]
	if !ok {
		return "", &IllegalTransitionError{From: p.Status, Event: event}
	}

	return t.resolve(p), nil
}

// Transition applies the event at the current time.
func Transition(p *Procedure, event Event) (*Procedure, error) {
	return TransitionAt(p, event, time.Now().UTC())
}

// TransitionAt returns a new snapshot with the event applied. The input is
// never modified. Eligibility for COMPLETE is the caller's concern.
func TransitionAt(p *Procedure, event Event, now time.Time) (*Procedure, error) {
	next, err := Resolve(p, event)
	if err != nil {
		return nil, err
	}

	out := p.Clone()
	out.Status = next
	out.LastEvent = event
	out.UpdatedAt = now

	switch event {
	case EventIdentityOK:
		out.Flags.IdentityOK = true
	case EventPaymentsOK:
		out.Flags.PaymentsOK = true
	case EventSignedAll:
		out.Flags.SignaturesOK = true
	case EventNotaryUploadApprove:
		out.Flags.NotaryOK = true
	case EventNotaryReject:
		out.Flags.NotaryOK = false
	}

	if next == StatusCompleted {
		out.CompletedAt = new(now)
	}

	return out, nil
}

// IsCompleteEligible reports whether every gate the policy requires is
// satisfied.
func IsCompleteEligible(p *Procedure) bool {
	switch {
	case RequiresIdentity(p) && !p.Flags.IdentityOK:
		return false
	case RequiresPaymentBeforeSignature(p) && !p.Flags.PaymentsOK:
		return false
	case !p.Flags.SignaturesOK:
		return false
	case p.NotaryRequired && !p.Flags.NotaryOK:
		return false
	default:
		return true
	}
}

// ReachableFromDraft reports whether status can be reached from draft by
// some sequence of events.
func ReachableFromDraft(status Status) bool {
	seen := map[Status]bool{StatusDraft: true}
	queue := []Status{StatusDraft}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, t := range transitions[cur] {
			for _, next := range t.candidates() {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}

	return seen[status]
}

// candidates enumerates every status a target can resolve to by probing the
// chooser with each policy combination.
func (t target) candidates() []Status {
	if t.kind == targetFixed {
		return []Status{t.status}
	}

	var out []Status

	for _, mode := range []IdentityMode{IdentityNone, IdentityBoth} {
		for _, pay := range []bool{false, true} {
			for _, notary := range []bool{false, true} {
				s := t.choose(&Procedure{
					IdentityPolicy: IdentityPolicy{Mode: mode},
					PaymentPolicy:  PaymentPolicy{RequireBeforeSignature: pay},
					NotaryRequired: notary,
				})
				if !slices.Contains(out, s) {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
