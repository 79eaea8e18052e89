package qrcode

import (
	"errors"
	"time"
)

type PayloadType string

const (
	TypeProfile   PayloadType = "profile"
	TypeAnonymous PayloadType = "anonymous"
	TypeCustom    PayloadType = "custom"

	DefaultVersion = "1.0"
)

var ErrInvalidPayload = errors.New("invalid qr payload")

func (t PayloadType) Valid() bool {
	switch t {
	case TypeProfile, TypeAnonymous, TypeCustom:
		return true
	}
	return false
}

// Meta holds the fields shared by every payload variant. Slug and ProfileID are optional.
type Meta struct {
	CreatedAt time.Time
	Version   string
	Slug      string
	ProfileID string
}

// NewMeta stamps createdAt at the precision the wire format keeps.
func NewMeta(createdAt time.Time) Meta {
	return Meta{
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
		Version:   DefaultVersion,
	}
}

// Payload is implemented only by ProfilePayload, AnonymousPayload and CustomPayload.
type Payload interface {
	Type() PayloadType
	Metadata() Meta
	Handle() string
	sealed()
}

type ProfilePayload struct {
	Meta
	Username string
}

type AnonymousPayload struct {
	Meta
	Username string
}

type CustomPayload struct {
	Meta
	Username string
	URL      string
}

func (ProfilePayload) Type() PayloadType   { return TypeProfile }
func (AnonymousPayload) Type() PayloadType { return TypeAnonymous }
func (CustomPayload) Type() PayloadType    { return TypeCustom }

func (p ProfilePayload) Metadata() Meta   { return p.Meta }
func (p AnonymousPayload) Metadata() Meta { return p.Meta }
func (p CustomPayload) Metadata() Meta    { return p.Meta }

func (p ProfilePayload) Handle() string   { return p.Username }
func (p AnonymousPayload) Handle() string { return p.Username }
func (p CustomPayload) Handle() string    { return p.Username }

func (ProfilePayload) sealed()   {}
func (AnonymousPayload) sealed() {}
func (CustomPayload) sealed()    {}
