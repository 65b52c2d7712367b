package booking

import "net/url"

// Form field names. They double as HTML input names and JSON keys.
const (
	FieldFirstName = "firstName"
	FieldSurname   = "surname"
	FieldPhone     = "phone"
	FieldEmail     = "email"
	FieldAddress   = "address"
	FieldPostcode  = "postcode"
)

// Fields lists the contact fields in display order.
var Fields = []string{FieldFirstName, FieldSurname, FieldPhone, FieldEmail, FieldAddress, FieldPostcode}

// prefillPrefix marks page-entry query parameters that seed the form.
const prefillPrefix = "utm_"

// ContactForm is the customer's contact details as typed.
type ContactForm struct {
	FirstName string `json:"firstName"`
	Surname   string `json:"surname"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Postcode  string `json:"postcode"`
}

// Get returns the value of the named field.
func (f ContactForm) Get(field string) string {
	switch field {
	case FieldFirstName:
		return f.FirstName
	case FieldSurname:
		return f.Surname
	case FieldPhone:
		return f.Phone
	case FieldEmail:
		return f.Email
	case FieldAddress:
		return f.Address
	case FieldPostcode:
		return f.Postcode
	default:
		return ""
	}
}

// Set returns a copy of f with the named field replaced. Unknown names are ignored.
func (f ContactForm) Set(field, value string) ContactForm {
	switch field {
	case FieldFirstName:
		f.FirstName = value
	case FieldSurname:
		f.Surname = value
	case FieldPhone:
		f.Phone = value
	case FieldEmail:
		f.Email = value
	case FieldAddress:
		f.Address = value
	case FieldPostcode:
		f.Postcode = value
	}
	return f
}

// FormFromValues reads every contact field from submitted form values.
func FormFromValues(values url.Values) ContactForm {
	var f ContactForm
	for _, field := range Fields {
		f = f.Set(field, values.Get(field))
	}
	return f
}

// PrefillFromQuery reads the utm_<field> page-entry parameters. Missing
// parameters leave the field empty.
func PrefillFromQuery(query url.Values) ContactForm {
	var f ContactForm
	for _, field := range Fields {
		f = f.Set(field, query.Get(prefillPrefix+field))
	}
	return f
}

// HasPrefill reports whether query carries any utm_<field> parameter.
func HasPrefill(query url.Values) bool {
	for _, field := range Fields {
		if _, ok := query[prefillPrefix+field]; ok {
			return true
		}
	}
	return false
}
