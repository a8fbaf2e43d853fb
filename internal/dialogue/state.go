// ABOUTME: Dialogue states, branch identifiers and collected field keys
// ABOUTME: The closed vocabulary shared by the flow table and the engine

package dialogue

// State is a named point in the intake flow.
type State string

// Flow states. Names match the values stored by earlier deployments.
const (
	StateStart State = "START"

	StateReplan1    State = "REPLAN_1"
	StateReplan2    State = "REPLAN_2"
	StateReplanCity State = "REPLAN_CITY"
	StateKad1       State = "KAD_1"
	StatePrirez1    State = "PRIREZ_1"
	StatePrirez2    State = "PRIREZ_2"
	StateTax1       State = "TAX_1"
	StateBuild1     State = "BUILD_1"
	StateBuild2     State = "BUILD_2"
	StateLand1      State = "LAND_1"
	StateLand2      State = "LAND_2"
	StateConst1     State = "CONST_1"
	StateConst2     State = "CONST_2"
	StateConstIssue State = "CONST_ISSUE"

	StateLeadPhonePrompt State = "LEAD_PHONE_PROMPT"
	StateLeadPhoneInput  State = "LEAD_PHONE_INPUT"
	StateLeadTime        State = "LEAD_TIME"
)

// tailStates are shared by every branch after detail capture.
var tailStates = []State{StateLeadPhonePrompt, StateLeadPhoneInput, StateLeadTime}

// BranchID identifies one top-level menu choice.
type BranchID string

const (
	BranchReplan       BranchID = "replan"
	BranchCadastral    BranchID = "cadastral"
	BranchAllotment    BranchID = "allotment"
	BranchTax          BranchID = "tax"
	BranchBuild        BranchID = "build"
	BranchLand         BranchID = "land"
	BranchConstruction BranchID = "construction"
	BranchContact      BranchID = "contact"
)

// Field is a key in the collected data map.
type Field string

const (
	FieldReplanType       Field = "replan_type"
	FieldReplanCity       Field = "replan_city"
	FieldKadType          Field = "kad_type"
	FieldPrirezPurpose    Field = "prirez_purpose"
	FieldPrirezSettlement Field = "prirez_settlement"
	FieldTaxInput         Field = "tax_input"
	FieldBuildType        Field = "build_type"
	FieldBuildSettlement  Field = "build_settlement"
	FieldLandSettlement   Field = "land_settlement"
	FieldLandDesc         Field = "land_desc"
	FieldConstRole        Field = "const_role"
	FieldConstIssue       Field = "const_issue"
)
