package shared

// Settings area permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.update"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.update"

	PermPermissionsView = "permissions.view"
)

// Beneficiary record permissions.
const (
	PermBaselineView   = "baseline.view"
	PermBaselineCreate = "baseline.create"
	PermBaselineUpdate = "baseline.update"
	PermBaselineDelete = "baseline.delete"

	PermFDPView   = "fdp.view"
	PermFDPCreate = "fdp.create"
	PermFDPUpdate = "fdp.update"

	PermInterventionsView   = "interventions.view"
	PermInterventionsCreate = "interventions.create"
	PermInterventionsUpdate = "interventions.update"

	PermROPView   = "rop.view"
	PermROPCreate = "rop.create"
	PermROPUpdate = "rop.update"
	PermROPDelete = "rop.delete"

	PermBankAccountsView   = "bankaccounts.view"
	PermBankAccountsUpdate = "bankaccounts.update"
)

// SettingsScopes lists permissions guarding the settings area.
func SettingsScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}
