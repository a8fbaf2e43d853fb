// ABOUTME: Typed per-branch records for the answers collected during intake
// ABOUTME: Converted to a plain string map only at the persistence boundary

package dialogue

// Slot binds one field of a Details record to its summary label.
type Slot struct {
	Field Field
	Label string
	Value *string
}

// Details is the typed answer record of one branch.
type Details interface {
	Branch() BranchID
	// Slots lists the record's fields in summary order.
	Slots() []Slot
}

// ReplanDetails holds the redevelopment branch answers.
type ReplanDetails struct {
	PremisesType string
	City         string
}

func (d *ReplanDetails) Branch() BranchID { return BranchReplan }

func (d *ReplanDetails) Slots() []Slot {
	return []Slot{
		{FieldReplanType, "Помещение", &d.PremisesType},
		{FieldReplanCity, "Город", &d.City},
	}
}

// CadastralDetails holds the cadastral works branch answers.
type CadastralDetails struct {
	WorkType string
}

func (d *CadastralDetails) Branch() BranchID { return BranchCadastral }

func (d *CadastralDetails) Slots() []Slot {
	return []Slot{
		{FieldKadType, "Кадастр", &d.WorkType},
	}
}

// AllotmentDetails holds the land extension branch answers.
type AllotmentDetails struct {
	Purpose    string
	Settlement string
}

func (d *AllotmentDetails) Branch() BranchID { return BranchAllotment }

func (d *AllotmentDetails) Slots() []Slot {
	return []Slot{
		{FieldPrirezPurpose, "Назначение", &d.Purpose},
		{FieldPrirezSettlement, "Нас. пункт", &d.Settlement},
	}
}

// TaxDetails holds the cadastral value reduction branch answers.
type TaxDetails struct {
	CadastralOrAddress string
}

func (d *TaxDetails) Branch() BranchID { return BranchTax }

func (d *TaxDetails) Slots() []Slot {
	return []Slot{
		{FieldTaxInput, "Кадастр/адрес", &d.CadastralOrAddress},
	}
}

// BuildDetails holds the house registration branch answers.
type BuildDetails struct {
	ObjectType string
	Settlement string
}

func (d *BuildDetails) Branch() BranchID { return BranchBuild }

func (d *BuildDetails) Slots() []Slot {
	return []Slot{
		{FieldBuildType, "Тип", &d.ObjectType},
		{FieldBuildSettlement, "Нас. пункт", &d.Settlement},
	}
}

// LandDetails holds the land dispute branch answers.
type LandDetails struct {
	Settlement  string
	Description string
}

func (d *LandDetails) Branch() BranchID { return BranchLand }

func (d *LandDetails) Slots() []Slot {
	return []Slot{
		{FieldLandSettlement, "Нас. пункт", &d.Settlement},
		{FieldLandDesc, "Ситуация", &d.Description},
	}
}

// ConstructionDetails holds the construction dispute branch answers.
type ConstructionDetails struct {
	Role  string
	Issue string
}

func (d *ConstructionDetails) Branch() BranchID { return BranchConstruction }

func (d *ConstructionDetails) Slots() []Slot {
	return []Slot{
		{FieldConstRole, "Роль", &d.Role},
		{FieldConstIssue, "Проблема", &d.Issue},
	}
}

// ContactDetails is the empty record of a direct "contact a lawyer" request.
type ContactDetails struct{}

func (d *ContactDetails) Branch() BranchID { return BranchContact }

func (d *ContactDetails) Slots() []Slot { return nil }

// NewDetails returns an empty record for the branch, or nil for an unknown one.
func NewDetails(branch BranchID) Details {
	switch branch {
	case BranchReplan:
		return &ReplanDetails{}
	case BranchCadastral:
		return &CadastralDetails{}
	case BranchAllotment:
		return &AllotmentDetails{}
	case BranchTax:
		return &TaxDetails{}
	case BranchBuild:
		return &BuildDetails{}
	case BranchLand:
		return &LandDetails{}
	case BranchConstruction:
		return &ConstructionDetails{}
	case BranchContact:
		return &ContactDetails{}
	default:
		return nil
	}
}

// SetField writes value into the slot for field. It reports false when the
// record has no such field.
func SetField(d Details, field Field, value string) bool {
	if d == nil {
		return false
	}
	for _, s := range d.Slots() {
		if s.Field == field {
			*s.Value = value
			return true
		}
	}
	return false
}

// GetField returns the value stored for field, or "" when absent.
func GetField(d Details, field Field) string {
	if d == nil {
		return ""
	}
	for _, s := range d.Slots() {
		if s.Field == field {
			return *s.Value
		}
	}
	return ""
}

// HasField reports whether the record declares field.
func HasField(d Details, field Field) bool {
	if d == nil {
		return false
	}
	for _, s := range d.Slots() {
		if s.Field == field {
			return true
		}
	}
	return false
}

// DetailsToMap flattens a record into the persisted map. Empty fields are omitted.
func DetailsToMap(d Details) map[string]string {
	out := map[string]string{}
	if d == nil {
		return out
	}
	for _, s := range d.Slots() {
		if *s.Value != "" {
			out[string(s.Field)] = *s.Value
		}
	}
	return out
}

// DetailsFromMap rebuilds the typed record for branch from a persisted map.
// Keys that do not belong to the branch are ignored.
func DetailsFromMap(branch BranchID, m map[string]string) Details {
	d := NewDetails(branch)
	if d == nil {
		return nil
	}
	for _, s := range d.Slots() {
		*s.Value = m[string(s.Field)]
	}
	return d
}

// cloneDetails copies a record so the engine never aliases its input.
func cloneDetails(d Details) Details {
	if d == nil {
		return nil
	}
	return DetailsFromMap(d.Branch(), DetailsToMap(d))
}
