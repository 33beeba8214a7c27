package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrMissingField   = errors.New("missing required field")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalid        = errors.New("invalid input")
)

// MaxMessageLength bounds a chat message.
const MaxMessageLength = 500

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	_ = v.RegisterValidation("gameid", func(fl validator.FieldLevel) bool {
		return GameID(fl.Field().String()).Valid()
	})
	return v
}

// ValidateStruct runs the struct tag rules on v.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %T: %s", ErrInvalid, v, strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// Validate checks a route target. Room routes must carry a slug.
func (r RouteProps) Validate() error {
	if err := ValidateStruct(r); err != nil {
		return err
	}
	if r.Name == RouteRoom && r.RoomSlug == "" {
		return fmt.Errorf("%w: roomSlug", ErrMissingField)
	}
	return nil
}

// Validate checks that the fields required by the command type are present.
func (c Command) Validate() error {
	switch c.Type {
	case CmdInitialize:
		if c.InitialLocation == "" {
			return fmt.Errorf("%w: initialLocation", ErrMissingField)
		}
		if c.AuthTokens != nil {
			return ValidateStruct(c.AuthTokens)
		}
	case CmdNavigate:
		if c.Route == nil {
			return fmt.Errorf("%w: route", ErrMissingField)
		}
		return c.Route.Validate()
	case CmdSelectGame:
		if !c.GameID.Valid() {
			return fmt.Errorf("invalid gameId %q", c.GameID)
		}
	case CmdSubmitName:
		if c.Name == "" {
			return fmt.Errorf("%w: name", ErrMissingField)
		}
	case CmdConfigureGame:
		if c.Configuration == nil {
			return fmt.Errorf("%w: configuration", ErrMissingField)
		}
		return ValidateStruct(c.Configuration)
	case CmdSend:
		if strings.TrimSpace(c.Message) == "" {
			return fmt.Errorf("%w: message", ErrMissingField)
		}
		if len(c.Message) > MaxMessageLength {
			return ErrMessageTooLong
		}
	case CmdReconnect, CmdDisconnect:
		if c.ConnectionEntityID == "" {
			return fmt.Errorf("%w: connectionEntityId", ErrMissingField)
		}
	case CmdHeartbeat, CmdTyping, CmdStart, CmdConnect, CmdJoin, CmdLeave:
		// Rooms require connectionEntityId; games and players take LEAVE bare.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
	return nil
}
