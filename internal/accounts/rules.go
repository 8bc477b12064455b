package accounts

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nodeadmin/backend/internal/models"
)

type Field string

const (
	FieldRole                   Field = "role"
	FieldUsername               Field = "username"
	FieldName                   Field = "name"
	FieldPublicName             Field = "public_name"
	FieldEmail                  Field = "email"
	FieldState                  Field = "state"
	FieldPassword               Field = "password"
	FieldPasswordChangeNeeded   Field = "password_change_needed"
	FieldLanguage               Field = "language"
	FieldNotification           Field = "notification"
	FieldTwoFactor              Field = "two_factor_enable"
	FieldPGPKey                 Field = "pgp_key"
	FieldEscrow                 Field = "escrow"
	FieldForcefullySelected     Field = "forcefully_selected"
	FieldCanPostponeExpiration  Field = "can_postpone_expiration"
	FieldCanDeleteSubmission    Field = "can_delete_submission"
	FieldCanEditGeneralSettings Field = "can_edit_general_settings"
)

type Section string

const (
	SectionAccount            Section = "account"
	SectionPassword           Section = "password"
	SectionPGPKey             Section = "pgp_key"
	SectionNotification       Section = "notification"
	SectionEscrow             Section = "escrow"
	SectionRecipient          Section = "recipient"
	SectionPostponeExpiration Section = "postpone_expiration"
	SectionDeleteSubmission   Section = "delete_submission"
	SectionGeneralSettings    Section = "general_settings"
	SectionTwoFactor          Section = "two_factor"
)

type FieldSet map[Field]bool

func (s FieldSet) Has(f Field) bool { return s[f] }

// Sorted returns the members in lexical order.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type SectionSet map[Section]bool

func (s SectionSet) Has(sec Section) bool { return s[sec] }

func (s SectionSet) Sorted() []Section {
	out := make([]Section, 0, len(s))
	for sec := range s {
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var emailPattern = regexp.MustCompile(`^[\w+.\-]{0,100}\w{1,100}@[\w+.\-]{0,100}\w{1,100}$`)

// ValidEmail reports whether addr matches the canonical address pattern.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

type fieldRule struct {
	field Field
	when  func(role models.UserRole, cfg models.NodeConfig) bool
}

var requiredRules = []fieldRule{
	{field: FieldUsername, when: func(role models.UserRole, cfg models.NodeConfig) bool {
		return !(role == models.UserRoleRecipient && cfg.SimplifiedLogin)
	}},
	{field: FieldPublicName, when: func(_ models.UserRole, cfg models.NodeConfig) bool {
		return !cfg.DoNotExposeUsersNames
	}},
	{field: FieldEmail},
}

type sectionRule struct {
	section Section
	roles   []models.UserRole
	when    func(role models.UserRole, cfg models.NodeConfig, encryption bool) bool
}

var sectionRules = []sectionRule{
	{section: SectionAccount},
	{section: SectionPassword},
	{section: SectionPGPKey},
	{section: SectionNotification, when: func(role models.UserRole, cfg models.NodeConfig, _ bool) bool {
		return NotificationExposed(role, cfg)
	}},
	{section: SectionEscrow, roles: []models.UserRole{models.UserRoleAdmin},
		when: func(_ models.UserRole, cfg models.NodeConfig, encryption bool) bool {
			return cfg.Escrow && encryption
		}},
	{section: SectionRecipient, roles: []models.UserRole{models.UserRoleRecipient}},
	{section: SectionPostponeExpiration, roles: []models.UserRole{models.UserRoleRecipient},
		when: func(_ models.UserRole, cfg models.NodeConfig, _ bool) bool {
			return !cfg.CanPostponeExpiration
		}},
	{section: SectionDeleteSubmission, roles: []models.UserRole{models.UserRoleRecipient},
		when: func(_ models.UserRole, cfg models.NodeConfig, _ bool) bool {
			return !cfg.CanDeleteSubmission
		}},
	{section: SectionGeneralSettings, roles: []models.UserRole{models.UserRoleRecipient, models.UserRoleCustodian}},
}

// sectionFields lists the delta fields each section makes editable. The
// escrow section has none: the grant only moves through ToggleEscrow.
var sectionFields = map[Section][]Field{
	SectionAccount: {
		FieldUsername, FieldName, FieldPublicName, FieldEmail, FieldState,
		FieldLanguage, FieldPasswordChangeNeeded,
	},
	SectionPassword:           {FieldPassword},
	SectionPGPKey:             {FieldPGPKey},
	SectionNotification:       {FieldNotification},
	SectionRecipient:          {FieldForcefullySelected},
	SectionPostponeExpiration: {FieldCanPostponeExpiration},
	SectionDeleteSubmission:   {FieldCanDeleteSubmission},
	SectionGeneralSettings:    {FieldCanEditGeneralSettings},
}

// RequiredFields returns the fields a record of the given role must carry
// under cfg.
func RequiredFields(role models.UserRole, cfg models.NodeConfig) FieldSet {
	out := FieldSet{}
	for _, rule := range requiredRules {
		if rule.when == nil || rule.when(role, cfg) {
			out[rule.field] = true
		}
	}
	return out
}

// VisibleSections returns the sections exposed when editing a user of the
// given role whose encryption flag is encryption.
func VisibleSections(role models.UserRole, cfg models.NodeConfig, encryption bool) SectionSet {
	out := SectionSet{}
	for _, rule := range sectionRules {
		if len(rule.roles) > 0 && !hasRole(rule.roles, role) {
			continue
		}
		if rule.when != nil && !rule.when(role, cfg, encryption) {
			continue
		}
		out[rule.section] = true
	}
	return out
}

// UserSections is VisibleSections for a concrete record. The two-factor
// section only shows while the user is enrolled; its one action is
// Disable2FA.
func UserSections(u *models.User, cfg models.NodeConfig) SectionSet {
	out := VisibleSections(u.Role, cfg, u.Encryption)
	if u.TwoFactorEnable {
		out[SectionTwoFactor] = true
	}
	return out
}

// EditableFields returns the fields an edit delta may change.
func EditableFields(role models.UserRole, cfg models.NodeConfig) FieldSet {
	out := FieldSet{}
	for sec := range VisibleSections(role, cfg, false) {
		for _, f := range sectionFields[sec] {
			out[f] = true
		}
	}
	return out
}

// EscrowAllowed reports whether the escrow grant of u may be changed.
func EscrowAllowed(u *models.User, cfg models.NodeConfig) bool {
	return VisibleSections(u.Role, cfg, u.Encryption).Has(SectionEscrow)
}

// ValidateRecord checks a full candidate record against the rules of its
// role. It returns the first violation found.
func ValidateRecord(u *models.User, cfg models.NodeConfig) error {
	if !u.Role.Valid() {
		return &ValidationError{Field: FieldRole, Reason: "is not a known role"}
	}
	if u.Role == models.UserRoleCustodian && !cfg.EnableCustodian {
		return &ValidationError{Field: FieldRole, Reason: "custodians are not enabled"}
	}

	required := RequiredFields(u.Role, cfg)
	for _, rule := range requiredRules {
		if required.Has(rule.field) && blank(fieldValue(u, rule.field)) {
			return missing(rule.field)
		}
	}

	if !ValidEmail(u.Mail) {
		return &ValidationError{Field: FieldEmail, Reason: "is not a valid address"}
	}

	switch u.State {
	case models.UserStateEnabled, models.UserStateDisabled:
	default:
		return &ValidationError{Field: FieldState, Reason: "must be enabled or disabled"}
	}

	return nil
}

func fieldValue(u *models.User, f Field) string {
	switch f {
	case FieldUsername:
		return u.Username
	case FieldPublicName:
		return u.PublicName
	case FieldEmail:
		return u.Mail
	case FieldName:
		return u.Name
	}
	return ""
}

func hasRole(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
