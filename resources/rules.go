package resources

// RenameRule maps a legacy snake_case attribute name to its canonical
// camelCase name. Rules are applied in slice order, so the order of
// LockboxRules is fixed for the whole repository.
type RenameRule struct {
	Legacy    string
	Canonical string
}

// LockboxRules is the closed set of attribute renames introduced when the
// lockbox services moved their stored attributes from snake_case to
// camelCase. A record that already carries the canonical name is never
// regressed to the legacy one.
var LockboxRules = []RenameRule{
	{Legacy: "box_id", Canonical: "boxId"},
	{Legacy: "user_id", Canonical: "userId"},
	{Legacy: "invitation_id", Canonical: "invitationId"},
	{Legacy: "invite_code", Canonical: "inviteCode"},
	{Legacy: "invited_name", Canonical: "invitedName"},
	{Legacy: "is_lead_guardian", Canonical: "isLeadGuardian"},
	{Legacy: "lead_guardians", Canonical: "leadGuardians"},
	{Legacy: "creator_id", Canonical: "creatorId"},
	{Legacy: "device_id", Canonical: "deviceId"},
	{Legacy: "event_type", Canonical: "eventType"},
	{Legacy: "unlock_requested", Canonical: "unlockRequested"},
	{Legacy: "created_at", Canonical: "createdAt"},
	{Legacy: "updated_at", Canonical: "updatedAt"},
	{Legacy: "expires_at", Canonical: "expiresAt"},
	{Legacy: "opened_at", Canonical: "openedAt"},
}

// TableSpec describes one logical table covered by the migration: its
// stable name, its primary key attribute(s), and the rename rules to apply
// when replaying its records. An empty Rules slice means the table's schema
// needs no renaming and records pass through unchanged.
type TableSpec struct {
	Name          string
	KeyAttributes []string
	Rules         []RenameRule
}

// LockboxTables is the default table registry for the lockbox stack.
func LockboxTables() []TableSpec {
	return []TableSpec{
		{
			Name:          "boxes",
			KeyAttributes: []string{"id"},
			Rules:         LockboxRules,
		},
		{
			Name:          "invitation",
			KeyAttributes: []string{"id"},
			Rules:         LockboxRules,
		},
	}
}
