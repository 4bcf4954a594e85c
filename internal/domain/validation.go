package domain

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Validation messages shown to operators.
const (
	MsgSubscriberRequired = "יש לבחור מנוי"
	MsgNothingToRecord    = "חובה להזין לפחות ערך אחד: מספר זכיות, עיון ההלכה, קרן מלגות או פסילת הפרשה"
	MsgNegative           = "הערך אינו יכול להיות שלילי"
	MsgUnknownCode        = "קוד תשובה לא מוכר"
	MsgTooLong            = "הטקסט ארוך מדי"
	MsgRequired           = "שדה חובה"
)

// AddForm is the payload of the add-subscriber form. Directory fields come
// from the selected lookup entry.
type AddForm struct {
	SubscriberCode         string `validate:"required"`
	Name                   string
	IDNumber               string
	Yeshiva                string
	Locality               string
	NumberOfWins           int    `validate:"gte=0"`
	ScholarshipFund        int    `validate:"gte=0"`
	ParashaAnswersCode     string `validate:"omitempty,parasha"`
	YiunHalacha            bool
	YiunHalachaAnswersCode string `validate:"omitempty,halacha"`
	AnswersText            string `validate:"max=1000"`
}

// HasValue reports whether at least one of wins, halacha study, scholarship
// fund or parasha code is recorded.
func (f AddForm) HasValue() bool {
	return f.NumberOfWins > 0 || f.YiunHalacha || f.ScholarshipFund > 0 || f.ParashaAnswersCode != ""
}

// Subscriber converts the form into a new row. The filing number is assigned
// by the API.
func (f AddForm) Subscriber() Subscriber {
	return Subscriber{
		SubscriberCode:         f.SubscriberCode,
		Name:                   f.Name,
		IDNumber:               f.IDNumber,
		Yeshiva:                f.Yeshiva,
		Locality:               f.Locality,
		NumberOfWins:           f.NumberOfWins,
		ScholarshipFund:        f.ScholarshipFund,
		ParashaAnswersCode:     f.ParashaAnswersCode,
		YiunHalacha:            f.YiunHalacha,
		YiunHalachaAnswersCode: f.YiunHalachaAnswersCode,
		AnswersText:            f.AnswersText,
	}
}

// AddFormOf builds the form view of s.
func AddFormOf(s Subscriber) AddForm {
	return AddForm{
		SubscriberCode:         s.SubscriberCode,
		Name:                   s.Name,
		IDNumber:               s.IDNumber,
		Yeshiva:                s.Yeshiva,
		Locality:               s.Locality,
		NumberOfWins:           s.NumberOfWins,
		ScholarshipFund:        s.ScholarshipFund,
		ParashaAnswersCode:     s.ParashaAnswersCode,
		YiunHalacha:            s.YiunHalacha,
		YiunHalachaAnswersCode: s.YiunHalachaAnswersCode,
		AnswersText:            s.AnswersText,
	}
}

// EditForm carries the inline-editable fields of a row.
type EditForm struct {
	NumberOfWins           int    `validate:"gte=0"`
	ScholarshipFund        int    `validate:"gte=0"`
	ParashaAnswersCode     string `validate:"omitempty,parasha"`
	YiunHalacha            bool
	YiunHalachaAnswersCode string `validate:"omitempty,halacha"`
	AnswersText            string `validate:"max=1000"`
}

// Patch returns a Subscriber carrying the edited values for filingNumber.
func (f EditForm) Patch(filingNumber int64) Subscriber {
	return Subscriber{
		FilingNumber:           filingNumber,
		NumberOfWins:           f.NumberOfWins,
		ScholarshipFund:        f.ScholarshipFund,
		ParashaAnswersCode:     f.ParashaAnswersCode,
		YiunHalacha:            f.YiunHalacha,
		YiunHalachaAnswersCode: f.YiunHalachaAnswersCode,
		AnswersText:            f.AnswersText,
	}
}

// EditFormOf builds the form view of s.
func EditFormOf(s Subscriber) EditForm {
	return EditForm{
		NumberOfWins:           s.NumberOfWins,
		ScholarshipFund:        s.ScholarshipFund,
		ParashaAnswersCode:     s.ParashaAnswersCode,
		YiunHalacha:            s.YiunHalacha,
		YiunHalachaAnswersCode: s.YiunHalachaAnswersCode,
		AnswersText:            s.AnswersText,
	}
}

// NewValidator returns a validator that knows the answer-code tags and the
// add form's at-least-one rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("parasha", func(fl validator.FieldLevel) bool {
		return ParashaAnswers.Has(fl.Field().String())
	})
	_ = v.RegisterValidation("halacha", func(fl validator.FieldLevel) bool {
		return HalachaAnswers.Has(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		form := sl.Current().Interface().(AddForm)
		if !form.HasValue() {
			sl.ReportError(form.NumberOfWins, "Values", "Values", "atleastone", "")
		}
	}, AddForm{})
	return v
}

// FormErrors validates form and returns operator-facing messages keyed by
// field name. It returns nil when form is valid.
func FormErrors(v *validator.Validate, form any) map[string]string {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"general": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() == "SubscriberCode" {
			return MsgSubscriberRequired
		}
		return MsgRequired
	case "atleastone":
		return MsgNothingToRecord
	case "gte":
		return MsgNegative
	case "parasha", "halacha":
		return MsgUnknownCode
	case "max":
		return MsgTooLong
	default:
		return fe.Error()
	}
}
