package records

import (
	"encoding/json"
	"strings"
	"time"
)

// Amount is the money block embedded in orders and invoices.
type Amount struct {
	Total    Number `json:"total"`
	Tax      Number `json:"tax"`
	Currency Text   `json:"currency"`
}

// UnmarshalJSON ignores non-object values.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	if !isObject(data) {
		return nil
	}
	type plain Amount
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	*a = Amount(p)
	return nil
}

// Fees carries the deductions recorded on a payment.
type Fees struct {
	VendaiCommission Number `json:"vendaiCommission"`
	Processor        Number `json:"processor"`
}

// UnmarshalJSON ignores non-object values.
func (f *Fees) UnmarshalJSON(data []byte) error {
	*f = Fees{}
	if !isObject(data) {
		return nil
	}
	type plain Fees
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	*f = Fees(p)
	return nil
}

// Payment is a row of the payments collection.
type Payment struct {
	ID         string `json:"-"`
	RetailerID Text   `json:"retailerId"`
	InvoiceID  Text   `json:"invoiceId"`
	Amount     Number `json:"amount"`
	Status     Text   `json:"status"`
	PaidOnTime Flag   `json:"paidOnTime"`
	Fees       Fees   `json:"fees"`
	ReceivedAt Time   `json:"receivedAt"`
	CreatedAt  Time   `json:"createdAt"`
}

// Settled reports whether the payment counts as money received.
func (p Payment) Settled() bool {
	return IsSettledStatus(p.Status.Or("pending"))
}

// PaidAt is the best known settlement time.
func (p Payment) PaidAt(fallback time.Time) time.Time {
	if p.ReceivedAt.Valid {
		return p.ReceivedAt.Value
	}
	return p.CreatedAt.Or(fallback)
}

// SettledPaymentStatuses lists payment statuses that represent money received.
var SettledPaymentStatuses = []string{"paid", "success", "partial"}

// IsSettledStatus reports whether status is one of SettledPaymentStatuses.
func IsSettledStatus(status string) bool {
	switch strings.ToLower(status) {
	case "paid", "success", "partial":
		return true
	}
	return false
}

// Invoice is a row of the invoices collection.
type Invoice struct {
	ID               string `json:"-"`
	Number           Text   `json:"number"`
	PurchaseOrderID  Text   `json:"purchaseOrderId"`
	RetailerID       Text   `json:"retailerId"`
	RetailerUserID   Text   `json:"retailerUserId"`
	RetailerOrgID    Text   `json:"retailerOrgId"`
	RetailerName     Text   `json:"retailerName"`
	SupplierID       Text   `json:"supplierId"`
	SupplierOrgID    Text   `json:"supplierOrgId"`
	SupplierName     Text   `json:"supplierName"`
	Amount           Amount `json:"amount"`
	TotalPaidAmount  Number `json:"totalPaidAmount"`
	PaymentStatus    Text   `json:"paymentStatus"`
	DueDate          Time   `json:"dueDate"`
	LastReminderSent Time   `json:"lastReminderSent"`
	ReminderCount    Number `json:"reminderCount"`
}

// Label is the human facing invoice reference.
func (i Invoice) Label() string {
	return i.Number.Or(i.ID)
}

// PurchaseOrder is a row of the purchase_orders collection.
type PurchaseOrder struct {
	ID            string `json:"-"`
	RetailerID    Text   `json:"retailerId"`
	RetailerOrgID Text   `json:"retailerOrgId"`
	RetailerName  Text   `json:"retailerName"`
	SupplierID    Text   `json:"supplierId"`
	SupplierOrgID Text   `json:"supplierOrgId"`
	SupplierName  Text   `json:"supplierName"`
	Status        Text   `json:"status"`
	Amount        Amount `json:"amount"`
	CreatedAt     Time   `json:"createdAt"`
}

// Dispute is a row of the disputes collection.
type Dispute struct {
	ID         string `json:"-"`
	RetailerID Text   `json:"retailerId"`
	Status     Text   `json:"status"`
	CreatedAt  Time   `json:"createdAt"`
}

// ActiveDisputeStatuses lists dispute statuses that are still being worked.
var ActiveDisputeStatuses = []string{"open", "under_review", "escalated", "appeal", "pending_resolution"}

// InventoryItem is a row of the inventory collection.
type InventoryItem struct {
	ID           string `json:"-"`
	OrgID        Text   `json:"orgId"`
	ProductID    Text   `json:"productId"`
	QtyBase      Number `json:"qtyBase"`
	UnitsPerBase Number `json:"unitsPerBase"`
	QtyLoose     Number `json:"qtyLoose"`
}

// TotalStock converts base and loose quantities into loose units.
func (i InventoryItem) TotalStock() float64 {
	units := i.UnitsPerBase.Or(0)
	if units == 0 {
		units = 1
	}
	return i.QtyBase.Or(0)*units + i.QtyLoose.Or(0)
}

// Product is a row of the pos_products catalog.
type Product struct {
	ID           string `json:"-"`
	OrgID        Text   `json:"orgId"`
	Name         Text   `json:"name"`
	ReorderPoint Number `json:"reorderPoint"`
	ReorderQty   Number `json:"reorderQty"`
}

// SupplierSKU links a product to a supplier offer.
type SupplierSKU struct {
	ID           string `json:"-"`
	OrgID        Text   `json:"orgId"`
	ProductID    Text   `json:"productId"`
	SupplierID   Text   `json:"supplierId"`
	LeadTimeDays Number `json:"leadTimeDays"`
	CostPrice    Number `json:"costPrice"`
}

// Supplier is a row of the suppliers collection.
type Supplier struct {
	ID   string `json:"-"`
	Name Text   `json:"name"`
}

// Organization is a row of the organizations collection.
type Organization struct {
	ID   string `json:"-"`
	Name Text   `json:"name"`
}

// User is a row of the users collection.
type User struct {
	ID           string `json:"-"`
	Role         Text   `json:"role"`
	Status       Text   `json:"status"`
	DisplayName  Text   `json:"displayName"`
	BusinessName Text   `json:"businessName"`
	Name         Text   `json:"name"`
	BillingEmail Text   `json:"billingEmail"`
	Email        Text   `json:"email"`
	PrimaryEmail Text   `json:"primaryEmail"`
	PhoneNumber  Text   `json:"phoneNumber"`
	ContactPhone Text   `json:"contactPhone"`
	SectorRisk   Text   `json:"sectorRisk"`
	IndustryRisk Text   `json:"industryRisk"`
	CreatedAt    Time   `json:"createdAt"`
	SignupDate   Time   `json:"signupDate"`
}

// ContactName picks the first present display name.
func (u User) ContactName() string {
	return pick(u.DisplayName, u.BusinessName, u.Name)
}

// ContactEmail picks the first present email address.
func (u User) ContactEmail() string {
	return pick(u.BillingEmail, u.Email, u.PrimaryEmail)
}

// ContactPhoneNumber picks the first present phone number.
func (u User) ContactPhoneNumber() string {
	return pick(u.PhoneNumber, u.ContactPhone)
}

func pick(values ...Text) string {
	for _, v := range values {
		if v.Valid {
			return v.Value
		}
	}
	return ""
}

// Decode unmarshals a stored document into dest. Empty or non-object
// documents decode to the zero value.
func Decode(raw []byte, dest any) error {
	if !isObject(raw) {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func (p *Payment) setID(id string)       { p.ID = id }
func (i *Invoice) setID(id string)       { i.ID = id }
func (o *PurchaseOrder) setID(id string) { o.ID = id }
func (d *Dispute) setID(id string)       { d.ID = id }
func (i *InventoryItem) setID(id string) { i.ID = id }
func (p *Product) setID(id string)       { p.ID = id }
func (s *SupplierSKU) setID(id string)   { s.ID = id }
func (s *Supplier) setID(id string)      { s.ID = id }
func (o *Organization) setID(id string)  { o.ID = id }
func (u *User) setID(id string)          { u.ID = id }
