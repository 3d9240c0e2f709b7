package bookings

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/teesched/internal/calendar"
)

// MaxParticipants is the largest group the reservation site accepts for one slot.
const MaxParticipants = 4

// Request is one stored intent to reserve a facility slot on TargetDate.
type Request struct {
	ID           int64    `json:"id"`
	Owner        string   `json:"owner"`
	Facility     string   `json:"facility"`
	TargetDate   string   `json:"target_date"`
	TargetTime   string   `json:"target_time"`
	Participants []string `json:"participants"`

	// Secret is the sealed site password; KeyMaterial is empty unless the record
	// carries its own key. Neither is ever serialized.
	Secret      string `json:"-"`
	KeyMaterial string `json:"-"`

	AttemptedOn string    `json:"attempted_on,omitempty"`
	Attempts    int       `json:"attempts"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// ReadErr is set by ListAll for a row that could not be read in full.
	ReadErr error `json:"-"`
}

// Submission is what a user hands in: the site password is still plaintext here.
type Submission struct {
	Owner        string   `json:"owner" validate:"required"`
	Password     string   `json:"password" validate:"required"`
	Facility     string   `json:"facility" validate:"required"`
	TargetDate   string   `json:"target_date" validate:"required,bookingdate"`
	TargetTime   string   `json:"target_time" validate:"required"`
	Participants []string `json:"participants" validate:"required,min=1,max=4,dive,required,excludesall=0x2C"`
}

// ValidationError maps offending json field names to a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid booking: " + strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bookingdate", func(fl validator.FieldLevel) bool {
		_, err := calendar.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field shape and that the booking window for TargetDate, which opens
// openOffsetDays before it, has not already opened before today.
func (s *Submission) Validate(today calendar.Date, openOffsetDays int) error {
	s.normalize()

	fields := map[string]string{}
	if err := validate.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fieldName(fe)] = message(fe)
			}
		} else {
			return err
		}
	}

	if _, bad := fields["target_date"]; !bad {
		d, _ := calendar.Parse(s.TargetDate)
		earliest := today.AddDays(openOffsetDays)
		switch {
		case !d.After(today):
			fields["target_date"] = "must be in the future"
		case d.Before(earliest):
			fields["target_date"] = fmt.Sprintf("booking window opened on %s and can no longer be attempted; earliest bookable date is %s",
				d.AddDays(-openOffsetDays), earliest)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *Submission) normalize() {
	s.Owner = strings.TrimSpace(s.Owner)
	s.Facility = strings.TrimSpace(s.Facility)
	s.TargetDate = strings.TrimSpace(s.TargetDate)
	s.TargetTime = strings.TrimSpace(s.TargetTime)
	for i, p := range s.Participants {
		s.Participants[i] = strings.TrimSpace(p)
	}
}

// fieldName collapses participants[2] to participants.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return name
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("at least %s required", fe.Param())
	case "max":
		return fmt.Sprintf("at most %s allowed", fe.Param())
	case "bookingdate":
		return "want YYYY/MM/DD"
	case "excludesall":
		return "names may not contain commas"
	default:
		return fmt.Sprintf("invalid %s", fe.Field())
	}
}

// Request builds the record to store once the password has been sealed.
func (s Submission) Request(secret, keyMaterial string) Request {
	return Request{
		Owner:        s.Owner,
		Facility:     s.Facility,
		TargetDate:   s.TargetDate,
		TargetTime:   s.TargetTime,
		Participants: append([]string(nil), s.Participants...),
		Secret:       secret,
		KeyMaterial:  keyMaterial,
	}
}

// JoinParticipants is the persisted form of a participant list.
func JoinParticipants(ps []string) string {
	return strings.Join(ps, ",")
}

// SplitParticipants reverses JoinParticipants, dropping blank entries.
func SplitParticipants(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Status tags the result of one booking attempt.
type Status string

const (
	Succeeded       Status = "succeeded"
	FailedPermanent Status = "failed_permanent"
	FailedRetryable Status = "failed_retryable"
)
