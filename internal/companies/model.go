package companies

import "time"

// Company is a legal entity that owns Betonara plants.
type Company struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	TaxID     string    `json:"tax_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompanyForm is the submitted create/edit form.
type CompanyForm struct {
	Code    string `validate:"required,max=20"`
	Name    string `validate:"required,max=200"`
	Address string `validate:"max=300"`
	TaxID   string `validate:"omitempty,numeric,len=13"`
}

func (f CompanyForm) company() Company {
	return Company{Code: f.Code, Name: f.Name, Address: f.Address, TaxID: f.TaxID}
}

func formFrom(c Company) CompanyForm {
	return CompanyForm{Code: c.Code, Name: c.Name, Address: c.Address, TaxID: c.TaxID}
}
