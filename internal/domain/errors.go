package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDevice              = errors.New("capture device unavailable")
	ErrSignaling           = errors.New("signaling failure")
	ErrNegotiationConflict = errors.New("negotiation conflict")
	ErrLinkFailure         = errors.New("peer link failure")
	ErrTranscription       = errors.New("transcription failure")
	ErrUnauthorized        = errors.New("credential rejected")
)

// DeviceError is meeting-fatal at initial acquisition and needs user action to retry.
type DeviceError struct {
	Kind string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("device: %v", e.Err)
	}
	return fmt.Sprintf("device %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error        { return e.Err }
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

type SignalingError struct {
	Op  string
	Err error
}

func (e *SignalingError) Error() string        { return fmt.Sprintf("signaling %s: %v", e.Op, e.Err) }
func (e *SignalingError) Unwrap() error        { return e.Err }
func (e *SignalingError) Is(target error) bool { return target == ErrSignaling }

// NegotiationConflict is dropped silently by the mesh and only logged.
type NegotiationConflict struct {
	Peer  ConnectionID
	Kind  string
	State string
}

func (e *NegotiationConflict) Error() string {
	return fmt.Sprintf("negotiation conflict with %s: %s in state %s", e.Peer, e.Kind, e.State)
}
func (e *NegotiationConflict) Is(target error) bool { return target == ErrNegotiationConflict }

type LinkFailure struct {
	Peer  ConnectionID
	Name  string
	State string
	Err   error
}

func (e *LinkFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link to %s (%s) %s: %v", e.Name, e.Peer, e.State, e.Err)
	}
	return fmt.Sprintf("link to %s (%s) %s", e.Name, e.Peer, e.State)
}
func (e *LinkFailure) Unwrap() error        { return e.Err }
func (e *LinkFailure) Is(target error) bool { return target == ErrLinkFailure }

type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string        { return fmt.Sprintf("transcription: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error        { return e.Err }
func (e *TranscriptionError) Is(target error) bool { return target == ErrTranscription }

// AuthError means the resource API rejected the session's credential. The
// user has to log in again; retrying with the same token will not help.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string        { return fmt.Sprintf("%s: session logged out: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error        { return e.Err }
func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

// Scope tells a user whether a failure is theirs or belongs to one remote participant.
type Scope string

const (
	ScopeMeeting     Scope = "meeting"
	ScopeParticipant Scope = "participant"
)

type Report struct {
	Scope Scope
	Peer  ConnectionID
	Err   error
}
