package repositories

import (
	"fmt"
	"time"
)

// AccountField names one attribute of an account, as used by FindBy and
// Update. The values double as column names.
type AccountField string

const (
	FieldID               AccountField = "id"
	FieldEmail            AccountField = "email"
	FieldHashedCredential AccountField = "hashed_credential"
	FieldSessionToken     AccountField = "session_token"
	FieldSessionCreatedAt AccountField = "session_created_at"
	FieldResetToken       AccountField = "reset_token"
)

// AccountFields is a partial update. A nil value clears a nullable field.
type AccountFields map[AccountField]any

var lookupFields = map[AccountField]bool{
	FieldID:               true,
	FieldEmail:            true,
	FieldHashedCredential: true,
	FieldSessionToken:     true,
	FieldResetToken:       true,
}

var updatableFields = map[AccountField]bool{
	FieldEmail:            true,
	FieldHashedCredential: true,
	FieldSessionToken:     true,
	FieldSessionCreatedAt: true,
	FieldResetToken:       true,
}

// lookupValue validates a FindBy predicate and returns its value in the
// type the stores compare against: int64 for id, string otherwise.
func lookupValue(field AccountField, value any) (any, error) {
	if !lookupFields[field] {
		return nil, fmt.Errorf("%w: cannot look up by %q", ErrInvalidField, field)
	}

	if field == FieldID {
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		default:
			return nil, fmt.Errorf("%w: id must be an integer, got %T", ErrInvalidField, value)
		}
	}

	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidField, field, value)
	}
	return s, nil
}

// normalizeFields validates an update and converts each value to the shape
// both stores persist: string for required columns, *string or *time.Time
// for nullable ones.
func normalizeFields(fields AccountFields) (map[AccountField]any, error) {
	out := make(map[AccountField]any, len(fields))

	for field, value := range fields {
		if !updatableFields[field] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
		}

		switch field {
		case FieldEmail, FieldHashedCredential:
			s, ok := value.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidField, field)
			}
			out[field] = s

		case FieldSessionToken, FieldResetToken:
			switch v := value.(type) {
			case nil:
				out[field] = (*string)(nil)
			case string:
				out[field] = &v
			case *string:
				out[field] = v
			default:
				return nil, fmt.Errorf("%w: %s must be a string or nil, got %T", ErrInvalidField, field, value)
			}

		case FieldSessionCreatedAt:
			switch v := value.(type) {
			case nil:
				out[field] = (*time.Time)(nil)
			case time.Time:
				out[field] = &v
			case *time.Time:
				out[field] = v
			default:
				return nil, fmt.Errorf("%w: %s must be a time or nil, got %T", ErrInvalidField, field, value)
			}
		}
	}

	return out, nil
}
