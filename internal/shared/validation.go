package shared

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// FormErrors maps form field names to user-facing messages.
type FormErrors map[string]string

// FieldErrors converts validator output to FormErrors keyed by struct field.
// Errors that are not validation errors end up under "general".
func FieldErrors(err error) FormErrors {
	out := FormErrors{}
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = UserSafeMessage(err)
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Polje je obavezno."
	case "email":
		return "Unesite ispravnu email adresu."
	case "min":
		return "Vrijednost je prekratka ili premala."
	case "max":
		return "Vrijednost je preduga ili prevelika."
	case "gt", "gte":
		return "Vrijednost mora biti veća."
	case "lte", "lt":
		return "Vrijednost je prevelika."
	case "eqfield":
		return "Vrijednosti se ne podudaraju."
	case "nefield":
		return "Nova vrijednost mora se razlikovati od trenutne."
	case "datetime":
		return "Unesite datum u formatu GGGG-MM-DD."
	case "oneof":
		return "Odaberite jednu od ponuđenih vrijednosti."
	case "numeric", "len":
		return "Unesite tačan broj cifara."
	default:
		return "Vrijednost nije ispravna."
	}
}
