package perms

// Permission keys checked by commands, RPC methods and staff administration.
const (
	BotsClaim      = "bots.claim"
	BotsClaimForce = "bots.claim_force"
	BotsUnclaim    = "bots.unclaim"
	BotsApprove    = "bots.approve"
	BotsDeny       = "bots.deny"
	BotsQueue      = "bots.queue"

	OnboardingApprove = "onboarding.approve"
	OnboardingDeny    = "onboarding.deny"
	OnboardingReset   = "onboarding.reset"

	StaffPositionsCreate = "staff_positions.create"
	StaffPositionsEdit   = "staff_positions.edit"
	StaffPositionsDelete = "staff_positions.delete"

	StaffDisciplinaryTypesCreate = "staff_disciplinary_types.create"
	StaffDisciplinaryTypesEdit   = "staff_disciplinary_types.edit"

	StaffDisciplinaryIssue   = "staff_disciplinary.issue"
	StaffDisciplinaryApprove = "staff_disciplinary.approve"
	StaffDisciplinaryRevoke  = "staff_disciplinary.revoke"

	StaffMembersEdit = "staff_members.edit"

	// RPC tier keys. A higher tier key satisfies every lower tier.
	RPCTierStaff = "rpc.tier.staff"
	RPCTierAdmin = "rpc.tier.admin"
	RPCTierHead  = "rpc.tier.head"
	RPCTierOwner = "rpc.tier.owner"
)

// RPC returns the permission key guarding an RPC method.
func RPC(method string) string {
	return "rpc." + method
}
